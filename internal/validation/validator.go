package validation

import (
	"fmt"
	"strings"

	"product-import-service/internal/models"
)

// Issue codes reported by ValidateProduct
const (
	CodeTitleMissing        = "TITLE_MISSING"
	CodeTitleTooShort       = "TITLE_TOO_SHORT"
	CodePriceInvalid        = "PRICE_INVALID"
	CodePriceHigh           = "PRICE_HIGH"
	CodeImagesMissing       = "IMAGES_MISSING"
	CodeImageURLInvalid     = "IMAGE_URL_INVALID"
	CodeVariantTitleMissing = "VARIANT_TITLE_MISSING"
	CodeVariantPriceInvalid = "VARIANT_PRICE_INVALID"
	CodeVariantSKUDuplicate = "VARIANT_SKU_DUPLICATE"
	CodeDescriptionShort    = "DESCRIPTION_SHORT"
	CodeCostExceedsPrice    = "COST_EXCEEDS_PRICE"
	CodeLowCompleteness     = "LOW_COMPLETENESS"
)

const (
	minTitleLength       = 3
	minDescriptionLength = 50
	highPrice            = 1000000
)

// Issue is one validation finding on a product field
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of ValidateProduct
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r *Result) addError(field, code, message string) {
	r.Errors = append(r.Errors, Issue{Field: field, Code: code, Message: message})
}

func (r *Result) addWarning(field, code, message string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Code: code, Message: message})
}

// HasError reports whether an error with the given code was recorded
func (r *Result) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// ValidateProduct checks the required fields of p. Errors make the product
// invalid; warnings do not.
func ValidateProduct(p *models.NormalizedProduct) *Result {
	r := &Result{Errors: []Issue{}, Warnings: []Issue{}}

	title := strings.TrimSpace(p.Title)
	switch {
	case title == "":
		r.addError("title", CodeTitleMissing, "title is required")
	case len([]rune(title)) < minTitleLength:
		r.addError("title", CodeTitleTooShort, fmt.Sprintf("title must be at least %d characters", minTitleLength))
	}

	if p.Price <= 0 {
		r.addError("price", CodePriceInvalid, "price must be a positive number")
	} else if p.Price > highPrice {
		r.addWarning("price", CodePriceHigh, "price seems unusually high")
	}

	if len(p.Images) == 0 {
		r.addError("images", CodeImagesMissing, "at least one image is required")
	}
	for i, img := range p.Images {
		if !IsHTTPURL(img) {
			r.addError(fmt.Sprintf("images[%d]", i), CodeImageURLInvalid, fmt.Sprintf("malformed image url %q", img))
		}
	}

	skus := map[string]int{}
	for i, v := range p.Variants {
		field := fmt.Sprintf("variants[%d]", i)
		if strings.TrimSpace(v.Title) == "" {
			r.addError(field+".title", CodeVariantTitleMissing, "variant title is required")
		}
		if v.Price <= 0 {
			r.addError(field+".price", CodeVariantPriceInvalid, "variant price must be a positive number")
		}
		if v.SKU == "" {
			continue
		}
		if first, dup := skus[v.SKU]; dup {
			r.addError(field+".sku", CodeVariantSKUDuplicate,
				fmt.Sprintf("sku %q already used by variants[%d]", v.SKU, first))
			continue
		}
		skus[v.SKU] = i
	}

	if len([]rune(StripMarkup(p.Description))) < minDescriptionLength {
		r.addWarning("description", CodeDescriptionShort,
			fmt.Sprintf("description is shorter than %d characters", minDescriptionLength))
	}
	if p.CostPrice != nil && p.Price > 0 && *p.CostPrice >= p.Price {
		r.addWarning("costPrice", CodeCostExceedsPrice, "cost price is not lower than the sale price")
	}
	if score := CalculateCompletenessScore(p); score < DraftThreshold {
		r.addWarning("completenessScore", CodeLowCompleteness,
			fmt.Sprintf("completeness score %d is below %d", score, DraftThreshold))
	}

	r.Valid = len(r.Errors) == 0
	return r
}
