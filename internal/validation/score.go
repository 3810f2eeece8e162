package validation

import (
	"product-import-service/internal/models"
)

// Completeness weights, summing to 100
const (
	weightTitle          = 15
	weightDescription    = 15
	weightPrice          = 10
	weightImages         = 15
	weightCategory       = 8
	weightSKU            = 5
	weightBrand          = 5
	weightVariants       = 10
	weightSEOTitle       = 5
	weightSEODescription = 5
	weightWeight         = 3
	weightAttributes     = 4
)

// Status thresholds
const (
	ReadyThreshold = 70
	DraftThreshold = 40
)

// titleCredit grants partial credit by title length
func titleCredit(n int) int {
	switch {
	case n >= 10:
		return weightTitle
	case n >= 3:
		return 9
	case n > 0:
		return 4
	}
	return 0
}

// descriptionCredit grants partial credit by plain-text description length
func descriptionCredit(n int) int {
	switch {
	case n >= 100:
		return weightDescription
	case n >= 50:
		return 10
	case n > 0:
		return 5
	}
	return 0
}

// imageCredit grants partial credit by image count
func imageCredit(n int) int {
	switch {
	case n >= 5:
		return weightImages
	case n >= 3:
		return 13
	case n == 2:
		return 10
	case n == 1:
		return 6
	}
	return 0
}

// CalculateCompletenessScore returns the weighted completeness of p in [0,100]
func CalculateCompletenessScore(p *models.NormalizedProduct) int {
	if p == nil {
		return 0
	}
	score := 0
	score += titleCredit(len([]rune(p.Title)))
	score += descriptionCredit(len([]rune(StripMarkup(p.Description))))
	if p.Price > 0 {
		score += weightPrice
	}
	score += imageCredit(len(p.Images))
	if p.Category != "" && p.Category != models.CategoryUncategorized {
		score += weightCategory
	}
	if p.SKU != "" {
		score += weightSKU
	}
	if p.Brand != "" {
		score += weightBrand
	}
	if p.HasVariants() {
		score += weightVariants
	}
	if p.SEOTitle != "" {
		score += weightSEOTitle
	}
	if p.SEODescription != "" {
		score += weightSEODescription
	}
	if p.Weight != nil && *p.Weight > 0 {
		score += weightWeight
	}
	if len(p.Attributes) > 0 {
		score += weightAttributes
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// DetermineProductStatus derives the status from a completeness score
func DetermineProductStatus(score int) models.ProductStatus {
	switch {
	case score >= ReadyThreshold:
		return models.ProductStatusReady
	case score >= DraftThreshold:
		return models.ProductStatusDraft
	default:
		return models.ProductStatusErrorIncomplete
	}
}
