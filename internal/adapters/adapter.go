package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"product-import-service/internal/capability"
	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// Reserved keys stamped on raw records during extraction
const (
	ExtractionKey = "_extraction"
	MalformedKey  = "_malformed"
)

// ErrMalformedRecord is returned by Normalize for records that failed structural parsing
var ErrMalformedRecord = errors.New("malformed record")

// Adapter retrieves raw records for one source family and maps them into
// the canonical product schema.
type Adapter interface {
	// Name identifies the adapter in logs
	Name() string

	// Extract returns the raw records of a request, from its inline payload
	// or by delegating retrieval to the collector.
	Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error)

	// Normalize maps one raw record. It never judges completeness; defaults
	// are applied instead of errors wherever a field is missing.
	Normalize(raw models.RawRecord, opts NormalizeOptions) (*models.NormalizedProduct, error)
}

// NormalizeOptions carries request-level context into Normalize
type NormalizeOptions struct {
	Source          models.SourceType
	IncludeVariants bool
	IncludeReviews  bool
	// BaseURL resolves relative image and link URLs
	BaseURL string
}

// NewNormalizeOptions derives normalize options from a request
func NewNormalizeOptions(source models.SourceType, req *models.ImportRequest) NormalizeOptions {
	opts := NormalizeOptions{Source: source, IncludeVariants: true}
	if req != nil {
		opts.IncludeVariants = req.Options.VariantsEnabled()
		opts.IncludeReviews = req.Options.IncludeReviews
		opts.BaseURL = req.URL
	}
	return opts
}

// collectOptions converts a request into collector options
func collectOptions(req *models.ImportRequest) clients.CollectOptions {
	return clients.CollectOptions{
		IncludeVariants: req.Options.VariantsEnabled(),
		IncludeReviews:  req.Options.IncludeReviews,
		MaxRecords:      req.Options.MaxRecords,
	}
}

// Malformed wraps a structurally invalid input element so it keeps its
// position in the batch and fails alone during normalization.
func Malformed(reason string) models.RawRecord {
	return models.RawRecord{MalformedKey: reason}
}

func checkMalformed(raw models.RawRecord) error {
	if raw == nil {
		return fmt.Errorf("%w: empty record", ErrMalformedRecord)
	}
	if reason, ok := raw[MalformedKey]; ok {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, reason)
	}
	return nil
}

// RecordsFromData converts an inline payload into raw records. Objects become
// one record, lists one record per element, and JSON text is decoded first.
// List elements that are not objects become malformed records. Every record
// is a copy, so adapters never write into the caller's maps.
func RecordsFromData(data interface{}) ([]models.RawRecord, error) {
	switch v := data.(type) {
	case nil:
		return nil, models.NewValidationError("data", "no data supplied")
	case models.RawRecord:
		return []models.RawRecord{cloneRecord(v)}, nil
	case map[string]interface{}:
		if list, ok := wrappedList(v); ok {
			return RecordsFromData(list)
		}
		return []models.RawRecord{cloneRecord(v)}, nil
	case []models.RawRecord:
		out := make([]models.RawRecord, len(v))
		for i, m := range v {
			out[i] = cloneRecord(m)
		}
		return out, nil
	case []map[string]interface{}:
		out := make([]models.RawRecord, len(v))
		for i, m := range v {
			out[i] = cloneRecord(m)
		}
		return out, nil
	case []interface{}:
		out := make([]models.RawRecord, 0, len(v))
		for i, item := range v {
			switch m := item.(type) {
			case map[string]interface{}:
				out = append(out, cloneRecord(m))
			case models.RawRecord:
				out = append(out, cloneRecord(m))
			default:
				out = append(out, Malformed(fmt.Sprintf("element %d is %T, not an object", i, item)))
			}
		}
		return out, nil
	case string:
		return decodeJSONRecords([]byte(v))
	case []byte:
		return decodeJSONRecords(v)
	case json.RawMessage:
		return decodeJSONRecords(v)
	}
	return nil, models.NewValidationError("data", fmt.Sprintf("unsupported data type %T", data))
}

// cloneRecord copies the top level of m. Nested values are shared and only read.
func cloneRecord(m map[string]interface{}) models.RawRecord {
	if m == nil {
		return nil
	}
	out := make(models.RawRecord, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// wrappedList unwraps the {"products": [...]} envelope exports commonly use
func wrappedList(m map[string]interface{}) ([]interface{}, bool) {
	if len(m) > 3 {
		return nil, false
	}
	for _, key := range []string{"products", "items", "data", "records"} {
		if list, ok := m[key].([]interface{}); ok {
			return list, true
		}
	}
	return nil, false
}

func decodeJSONRecords(b []byte) ([]models.RawRecord, error) {
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	switch decoded.(type) {
	case map[string]interface{}, []interface{}:
		return RecordsFromData(decoded)
	}
	return nil, fmt.Errorf("JSON payload must be an object or a list, got %T", decoded)
}

// TagRecords stamps the extraction kind on records that do not carry one
func TagRecords(records []models.RawRecord, kind models.ExtractionKind) []models.RawRecord {
	for _, r := range records {
		if r == nil {
			continue
		}
		if _, ok := r[ExtractionKey]; !ok {
			r[ExtractionKey] = string(kind)
		}
	}
	return records
}

// RecordKind returns the extraction kind stamped on a record, or fallback
func RecordKind(raw models.RawRecord, fallback models.ExtractionKind) models.ExtractionKind {
	if s, ok := raw[ExtractionKey].(string); ok && s != "" {
		return models.ExtractionKind(s)
	}
	return fallback
}

// fieldSourceKinds maps the provenance labels collectors report onto extraction kinds
var fieldSourceKinds = map[string]models.ExtractionKind{
	"api":            models.ExtractionAPI,
	"headless":       models.ExtractionHeadlessFetch,
	"headless-fetch": models.ExtractionHeadlessFetch,
	"json-ld":        models.ExtractionMarkupScrape,
	"opengraph":      models.ExtractionMarkupScrape,
	"dom":            models.ExtractionMarkupScrape,
	"html":           models.ExtractionMarkupScrape,
	"markup-scrape":  models.ExtractionMarkupScrape,
	"manual":         models.ExtractionManual,
	"fallback":       models.ExtractionAIInferred,
	"default":        models.ExtractionAIInferred,
	"ai":             models.ExtractionAIInferred,
	"ai-inferred":    models.ExtractionAIInferred,
}

// applyFieldSources copies per-field provenance reported by the collector
// into the product attribution.
func applyFieldSources(p *models.NormalizedProduct, raw models.RawRecord) {
	sources := capability.Object(raw, "field_sources", "fieldSources")
	for field, v := range sources {
		var label string
		confidence := -1
		switch t := v.(type) {
		case string:
			label = t
		default:
			obj, ok := t.(map[string]interface{})
			if !ok {
				continue
			}
			label = capability.ToString(obj["source"])
			if label == "" {
				label = capability.ToString(obj["kind"])
			}
			if c, ok := capability.ToFloat(obj["confidence"]); ok {
				confidence = int(c)
			}
		}
		kind, ok := fieldSourceKinds[strings.ToLower(label)]
		if !ok {
			continue
		}
		p.Attribution = capability.Attribute(p.Attribution, capability.CreateAttribution(kind, confidence), canonicalFieldName(field))
	}
}

// canonicalFieldName converts snake_case collector field names to the
// camelCase names used in attribution.
func canonicalFieldName(field string) string {
	switch field {
	case "stock_quantity":
		return "stock"
	case "video_urls":
		return "videos"
	case "reviews_count":
		return "reviewCount"
	}
	parts := strings.Split(field, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// fillVariantPrices gives single-price variants the product price
func fillVariantPrices(p *models.NormalizedProduct) {
	for i := range p.Variants {
		if p.Variants[i].Price <= 0 && p.Price > 0 {
			p.Variants[i].Price = p.Price
		}
	}
	if p.Price <= 0 {
		for _, v := range p.Variants {
			if v.Price > 0 && (p.Price <= 0 || v.Price < p.Price) {
				p.Price = v.Price
			}
		}
	}
}

// hostOf returns the lowercased host of a URL, or "" when it does not parse
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// requireURL returns a ValidationError when the request carries no usable URL
func requireURL(req *models.ImportRequest) error {
	if req.URL == "" {
		return models.NewValidationError("url", "a url or data payload is required")
	}
	if hostOf(req.URL) == "" {
		return models.NewValidationError("url", "url is not valid")
	}
	return nil
}
