package adapters

import (
	"context"
	"strings"

	"product-import-service/internal/capability"
	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// CommercePlatformAdapter bulk-imports a store running on a commerce
// platform (shopify) through the collector store exporter.
type CommercePlatformAdapter struct {
	collector clients.Collector
	aliases   fieldAliases
}

// NewCommercePlatformAdapter creates a new commerce-platform adapter
func NewCommercePlatformAdapter(collector clients.Collector) *CommercePlatformAdapter {
	return &CommercePlatformAdapter{
		collector: collector,
		aliases: extendAliases(fieldAliases{
			Description:    []string{"body_html", "bodyHtml", "descriptionHtml"},
			Price:          []string{"priceRange.minVariantPrice.amount"},
			Images:         []string{"images", "media", "featuredImage.url", "image.src"},
			Category:       []string{"product_type", "productType"},
			Brand:          []string{"vendor"},
			Options:        []string{"options"},
			SourceID:       []string{"id", "admin_graphql_api_id"},
			SEOTitle:       []string{"seo.title", "metafields_global_title_tag"},
			SEODescription: []string{"seo.description", "metafields_global_description_tag"},
		}),
	}
}

func (a *CommercePlatformAdapter) Name() string {
	return "commerce-platform"
}

// Extract exports every product of the store the request URL points at
func (a *CommercePlatformAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	if req.Data != nil {
		records, err := RecordsFromData(req.Data)
		if err != nil {
			return nil, err
		}
		return TagRecords(records, models.ExtractionAPI), nil
	}
	if err := requireURL(req); err != nil {
		return nil, err
	}
	records, err := a.collector.ExportStore(ctx, hostOf(req.URL), collectOptions(req))
	if err != nil {
		return nil, err
	}
	return TagRecords(records, models.ExtractionAPI), nil
}

func (a *CommercePlatformAdapter) Normalize(raw models.RawRecord, opts NormalizeOptions) (*models.NormalizedProduct, error) {
	if opts.BaseURL != "" {
		// Relative product links resolve against the store root
		if host := hostOf(opts.BaseURL); host != "" {
			opts.BaseURL = "https://" + host + "/"
		}
	}
	p, err := mapProduct(raw, opts, a.aliases, RecordKind(raw, models.ExtractionAPI))
	if err != nil {
		return nil, err
	}

	// Exports carry no product URL, only the handle
	if handle := capability.String(raw, "handle"); handle != "" && opts.BaseURL != "" && !strings.Contains(p.SourceURL, "/products/") {
		p.SourceURL = capability.ResolveURL("/products/"+handle, opts.BaseURL)
	}
	if p.SKU == "" && p.HasVariants() {
		p.SKU = p.Variants[0].SKU
	}

	// A single "Default Title" variant means the product has no options
	if len(p.Variants) == 1 && len(p.Variants[0].Options) == 0 && strings.EqualFold(p.Variants[0].Title, "Default Title") {
		if p.Stock == nil {
			stock := p.Variants[0].Stock
			p.Stock = &stock
			p.Availability = capability.InferAvailability("", p.Stock)
		}
		p.Variants = nil
		p.Options = nil
		delete(p.Attribution, "variants")
	}
	return p, nil
}
