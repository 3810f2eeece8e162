package adapters

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// htmlKey carries a fetched page on the raw record until Normalize parses it
const htmlKey = "_html"

// GenericURLAdapter is the fallback for unrecognized sources. It prefers the
// first JSON-LD Product block of the page and falls back to meta tags.
type GenericURLAdapter struct {
	collector clients.Collector
	aliases   fieldAliases
}

// NewGenericURLAdapter creates a new generic URL adapter
func NewGenericURLAdapter(collector clients.Collector) *GenericURLAdapter {
	return &GenericURLAdapter{
		collector: collector,
		aliases: extendAliases(fieldAliases{
			Price:        []string{"offers.price", "offers.lowPrice", "product:price:amount", "og:price:amount"},
			Currency:     []string{"offers.priceCurrency", "product:price:currency", "og:price:currency"},
			Images:       []string{"image", "og:image", "twitter:image"},
			Category:     []string{"category", "product:category"},
			Brand:        []string{"brand.name", "brand", "product:brand", "og:brand"},
			Availability: []string{"offers.availability", "product:availability", "og:availability"},
			SKU:          []string{"sku", "mpn", "product:retailer_item_id"},
			Barcode:      []string{"gtin13", "gtin12", "gtin8", "gtin"},
			Variants:     []string{"hasVariant"},
			Rating:       []string{"aggregateRating.ratingValue"},
			ReviewCount:  []string{"aggregateRating.reviewCount", "aggregateRating.ratingCount"},
			Reviews:      []string{"review"},
			SourceURL:    []string{"url", "og:url", "canonical"},
			Title:        []string{"name", "og:title", "twitter:title", "html_title"},
			Description:  []string{"description", "og:description", "meta_description", "twitter:description"},
		}),
	}
}

func (a *GenericURLAdapter) Name() string {
	return "generic-url"
}

// Extract fetches the page through the collector. Inline data is treated
// as a page payload from the browser extension: either structured fields
// or {"html": "..."}.
func (a *GenericURLAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	if req.Data != nil {
		records, err := RecordsFromData(req.Data)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if doc, ok := r["html"].(string); ok && r[htmlKey] == nil {
				r[htmlKey] = doc
				delete(r, "html")
			}
		}
		return TagRecords(records, models.ExtractionMarkupScrape), nil
	}
	if err := requireURL(req); err != nil {
		return nil, err
	}
	page, err := a.collector.FetchPage(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = req.URL
	}
	record := models.RawRecord{htmlKey: page.HTML, "url": pageURL}
	return TagRecords([]models.RawRecord{record}, models.ExtractionMarkupScrape), nil
}

func (a *GenericURLAdapter) Normalize(raw models.RawRecord, opts NormalizeOptions) (*models.NormalizedProduct, error) {
	if err := checkMalformed(raw); err != nil {
		return nil, err
	}
	if doc, ok := raw[htmlKey].(string); ok {
		fields, err := ExtractPageFields(doc)
		if err != nil {
			return nil, err
		}
		for k, v := range raw {
			if k == htmlKey {
				continue
			}
			if _, taken := fields[k]; !taken {
				fields[k] = v
			}
		}
		raw = fields
	}
	if opts.BaseURL == "" {
		if u, ok := raw["url"].(string); ok {
			opts.BaseURL = u
		}
	}
	return mapProduct(raw, opts, a.aliases, RecordKind(raw, models.ExtractionMarkupScrape))
}

// ExtractPageFields returns the first JSON-LD Product object of a page,
// completed with the page meta tags (OpenGraph, product:*, description) and
// <title> under their own keys. Aliases try the structured keys first.
func ExtractPageFields(doc string) (models.RawRecord, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}

	var (
		product models.RawRecord
		meta    = models.RawRecord{}
		images  []interface{}
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				if product == nil && strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
					product = findJSONLDProduct(n.FirstChild.Data)
				}
			case "meta":
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				key = strings.ToLower(strings.TrimSpace(key))
				content := strings.TrimSpace(attr(n, "content"))
				if key == "" || content == "" {
					break
				}
				switch key {
				case "og:image", "og:image:url", "og:image:secure_url", "twitter:image":
					images = append(images, content)
				case "description":
					setOnce(meta, "meta_description", content)
				default:
					setOnce(meta, key, content)
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "canonical") {
					setOnce(meta, "canonical", attr(n, "href"))
				}
			case "title":
				if n.FirstChild != nil {
					setOnce(meta, "html_title", strings.TrimSpace(n.FirstChild.Data))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(images) > 0 {
		meta["og:image"] = images
	}
	if product == nil {
		return meta, nil
	}
	// Meta tags fill the fields the structured block leaves out
	for k, v := range meta {
		if _, taken := product[k]; !taken {
			product[k] = v
		}
	}
	return product, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func setOnce(m models.RawRecord, key, value string) {
	if _, ok := m[key]; !ok && value != "" {
		m[key] = value
	}
}

// findJSONLDProduct looks for a Product node at the top level, in an array
// or inside @graph.
func findJSONLDProduct(text string) models.RawRecord {
	var decoded interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &decoded); err != nil {
		return nil
	}
	return productNode(decoded)
}

func productNode(v interface{}) models.RawRecord {
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			if p := productNode(item); p != nil {
				return p
			}
		}
	case map[string]interface{}:
		if isProductType(t["@type"]) {
			return normalizeOffers(t)
		}
		if graph, ok := t["@graph"]; ok {
			return productNode(graph)
		}
	}
	return nil
}

func isProductType(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return t == "Product" || t == "ProductGroup"
	case []interface{}:
		for _, item := range t {
			if isProductType(item) {
				return true
			}
		}
	}
	return false
}

// normalizeOffers keeps the first offer when "offers" is a list, so the
// offers.* aliases resolve.
func normalizeOffers(product map[string]interface{}) models.RawRecord {
	if list, ok := product["offers"].([]interface{}); ok && len(list) > 0 {
		product["offers"] = list[0]
	}
	if offers, ok := product["offers"].(map[string]interface{}); ok {
		if nested, isList := offers["offers"].([]interface{}); isList && len(nested) > 0 {
			product["offers"] = nested[0]
		}
	}
	return product
}
