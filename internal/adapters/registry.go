package adapters

import (
	"strings"
	"sync"

	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// detectionOrder is the fixed precedence used to detect a source from a URL
// host. The first token contained in the host wins.
var detectionOrder = []struct {
	Token  string
	Source models.SourceType
}{
	{"aliexpress", models.SourceAliExpress},
	{"temu", models.SourceTemu},
	{"amazon", models.SourceAmazon},
	{"ebay", models.SourceEbay},
	{"shopify", models.SourceShopify},
}

// Registry maps source identifiers to adapters. Several sources may share
// one adapter instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.SourceType]Adapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.SourceType]Adapter)}
}

// NewDefaultRegistry wires every supported source to its adapter
func NewDefaultRegistry(collector clients.Collector) *Registry {
	r := NewRegistry()

	scrape := NewScrapeAdapter(collector)
	storefront := NewStorefrontAdapter(collector)
	file := NewFileAdapter(collector)

	r.Register(scrape, models.SourceAliExpress, models.SourceTemu)
	r.Register(storefront, models.SourceAmazon, models.SourceEbay)
	r.Register(NewCommercePlatformAdapter(collector), models.SourceShopify)
	r.Register(file, models.SourceCSV, models.SourceXML, models.SourceJSON, models.SourceXLSX)
	r.Register(NewGenericURLAdapter(collector), models.SourceURL)
	return r
}

// Register maps each source to the adapter, replacing earlier mappings
func (r *Registry) Register(adapter Adapter, sources ...models.SourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, source := range sources {
		r.adapters[source] = adapter
	}
}

// Resolve returns the adapter of a source, or an UnsupportedSourceError
func (r *Registry) Resolve(source models.SourceType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[source]
	if !ok {
		return nil, &models.UnsupportedSourceError{Source: string(source)}
	}
	return adapter, nil
}

// Sources lists the registered source identifiers
func (r *Registry) Sources() []models.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SourceType, 0, len(r.adapters))
	for _, s := range models.AllSources {
		if _, ok := r.adapters[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// DetectSource resolves the source of a URL from its host. Hosts matching
// no marketplace token resolve to the generic url source.
func DetectSource(rawURL string) models.SourceType {
	host := hostOf(rawURL)
	if host == "" {
		host = strings.ToLower(rawURL)
	}
	for _, entry := range detectionOrder {
		if strings.Contains(host, entry.Token) {
			return entry.Source
		}
	}
	return models.SourceURL
}
