package capability

import (
	"time"

	"product-import-service/internal/models"
	"product-import-service/internal/validation"
)

// IncompleteScoreCap is the highest score a product failing required-field
// validation can keep, so its status always derives to error_incomplete.
const IncompleteScoreCap = 39

// Default confidence per extraction kind
var defaultConfidence = map[models.ExtractionKind]int{
	models.ExtractionAPI:           95,
	models.ExtractionHeadlessFetch: 85,
	models.ExtractionMarkupScrape:  70,
	models.ExtractionManual:        90,
	models.ExtractionAIInferred:    50,
}

// CreateAttribution builds the provenance of one field. A negative confidence
// selects the default for the kind; values are clamped to 0-100.
func CreateAttribution(kind models.ExtractionKind, confidence int) models.FieldSource {
	if confidence < 0 {
		confidence = defaultConfidence[kind]
	}
	if confidence > 100 {
		confidence = 100
	}
	return models.FieldSource{
		Kind:        kind,
		Confidence:  confidence,
		ExtractedAt: time.Now().UTC(),
	}
}

// Attribute stamps the same provenance on every listed field
func Attribute(attribution models.SourceAttribution, source models.FieldSource, fields ...string) models.SourceAttribution {
	if attribution == nil {
		attribution = models.SourceAttribution{}
	}
	for _, field := range fields {
		attribution[field] = source
	}
	return attribution
}

// PopulatedFields lists the canonical fields that carry a value
func PopulatedFields(p *models.NormalizedProduct) []string {
	var fields []string
	add := func(name string, present bool) {
		if present {
			fields = append(fields, name)
		}
	}
	add("title", p.Title != "")
	add("description", p.Description != "")
	add("price", p.Price > 0)
	add("costPrice", p.CostPrice != nil)
	add("compareAtPrice", p.CompareAtPrice != nil)
	add("sku", p.SKU != "")
	add("barcode", p.Barcode != "")
	add("images", len(p.Images) > 0)
	add("videos", len(p.Videos) > 0)
	add("category", p.Category != "" && p.Category != models.CategoryUncategorized)
	add("brand", p.Brand != "")
	add("stock", p.Stock != nil)
	add("weight", p.Weight != nil)
	add("variants", p.HasVariants())
	add("attributes", len(p.Attributes) > 0)
	add("tags", len(p.Tags) > 0)
	add("rating", p.Rating != nil)
	add("reviews", len(p.Reviews) > 0)
	add("shipping", p.Shipping != nil)
	add("supplier", p.Supplier != nil)
	return fields
}

// Finalize applies canonical defaults, stamps missing attribution with the
// given fallback and computes CompletenessScore and Status. It is the only
// place either field is written. Products failing hard validation are capped
// at IncompleteScoreCap.
func Finalize(p *models.NormalizedProduct, fallback models.FieldSource) *models.NormalizedProduct {
	return finalize(p, fallback, true)
}

// FinalizeUnchecked is Finalize without the hard-validation cap. A product
// without a positive price or without images is still capped.
func FinalizeUnchecked(p *models.NormalizedProduct, fallback models.FieldSource) *models.NormalizedProduct {
	return finalize(p, fallback, false)
}

func finalize(p *models.NormalizedProduct, fallback models.FieldSource, enforce bool) *models.NormalizedProduct {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Category == "" {
		p.Category = models.CategoryUncategorized
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.Availability == "" {
		p.Availability = InferAvailability("", p.Stock)
	}

	if p.Attribution == nil {
		p.Attribution = models.SourceAttribution{}
	}
	for _, field := range PopulatedFields(p) {
		if _, ok := p.Attribution[field]; !ok {
			p.Attribution[field] = fallback
		}
	}

	score := validation.CalculateCompletenessScore(p)
	incomplete := p.Price <= 0 || len(p.Images) == 0
	if enforce && !incomplete {
		incomplete = !validation.ValidateProduct(p).Valid
	}
	if incomplete && score > IncompleteScoreCap {
		score = IncompleteScoreCap
	}
	p.CompletenessScore = score
	p.Status = validation.DetermineProductStatus(score)
	if p.NormalizedAt.IsZero() {
		p.NormalizedAt = time.Now().UTC()
	}
	return p
}
