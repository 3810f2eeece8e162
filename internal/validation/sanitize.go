package validation

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"product-import-service/internal/models"
)

// Field length limits applied by SanitizeProduct
const (
	MaxTitleLength          = 200
	MaxSEOTitleLength       = 60
	MaxSEODescriptionLength = 160
	MaxDescriptionLength    = 10000
)

var (
	// strictPolicy removes every tag
	strictPolicy = bluemonday.StrictPolicy()
	// descriptionPolicy keeps simple formatting markup only
	descriptionPolicy = bluemonday.NewPolicy().
		AllowElements("p", "br", "b", "strong", "i", "em", "ul", "ol", "li", "h2", "h3", "h4")

	skuInvalidRe  = regexp.MustCompile(`[^A-Z0-9_-]+`)
	skuSpaceRe    = regexp.MustCompile(`\s+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	blockBreakRe  = regexp.MustCompile(`(?i)<\s*(br|/p|/li|/h[1-6])\s*/?>`)
	angleReplacer = strings.NewReplacer("<", "", ">", "")
)

// StripMarkup reduces s to plain text with collapsed whitespace
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	s = blockBreakRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	if strings.ContainsAny(s, "<>") {
		s = angleReplacer.Replace(s)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// SanitizeHTML keeps only the description markup allowlist
func SanitizeHTML(s string) string {
	if s == "" {
		return ""
	}
	if runes := []rune(s); len(runes) > MaxDescriptionLength {
		s = string(runes[:MaxDescriptionLength])
	}
	return strings.TrimSpace(descriptionPolicy.Sanitize(s))
}

// Truncate cuts s to at most max runes, preferring a word boundary, and
// terminates the result with "..."
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	cut := string(runes[:max-3])
	if i := strings.LastIndexAny(cut, " \t\n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "..."
}

// IsHTTPURL reports whether s is an absolute http(s) URL with a host
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CanonicalSKU uppercases a SKU and restricts it to [A-Z0-9_-]
func CanonicalSKU(sku string) string {
	s := strings.ToUpper(strings.TrimSpace(sku))
	s = skuSpaceRe.ReplaceAllString(s, "-")
	return skuInvalidRe.ReplaceAllString(s, "")
}

// SanitizeProduct strips markup from text fields, enforces length limits,
// drops malformed image URLs and canonicalizes variant SKUs. SEO fields
// default to the title and plain-text description when absent.
func SanitizeProduct(p *models.NormalizedProduct) *models.NormalizedProduct {
	p.Title = Truncate(StripMarkup(p.Title), MaxTitleLength)
	p.Description = SanitizeHTML(p.Description)
	p.Brand = StripMarkup(p.Brand)
	p.SKU = StripMarkup(p.SKU)
	p.Barcode = StripMarkup(p.Barcode)

	if p.SEOTitle == "" {
		p.SEOTitle = p.Title
	}
	p.SEOTitle = Truncate(StripMarkup(p.SEOTitle), MaxSEOTitleLength)
	if p.SEODescription == "" {
		p.SEODescription = p.Description
	}
	p.SEODescription = Truncate(StripMarkup(p.SEODescription), MaxSEODescriptionLength)

	images := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if IsHTTPURL(img) {
			images = append(images, strings.TrimSpace(img))
		}
	}
	p.Images = images

	for i := range p.CategoryPath {
		p.CategoryPath[i] = StripMarkup(p.CategoryPath[i])
	}
	for i := range p.Tags {
		p.Tags[i] = StripMarkup(p.Tags[i])
	}
	for key, values := range p.Attributes {
		for i := range values {
			values[i] = StripMarkup(values[i])
		}
		p.Attributes[key] = values
	}

	for i := range p.Variants {
		v := &p.Variants[i]
		v.Title = StripMarkup(v.Title)
		v.SKU = CanonicalSKU(v.SKU)
		if v.ImageURL != "" && !IsHTTPURL(v.ImageURL) {
			v.ImageURL = ""
		}
		for name, value := range v.Options {
			v.Options[name] = StripMarkup(value)
		}
	}

	for i := range p.Reviews {
		r := &p.Reviews[i]
		r.Author = StripMarkup(r.Author)
		r.Title = StripMarkup(r.Title)
		r.Content = StripMarkup(r.Content)
	}

	if p.Supplier != nil {
		p.Supplier.Name = StripMarkup(p.Supplier.Name)
	}
	return p
}
