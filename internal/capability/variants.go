package capability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"product-import-service/internal/models"
)

const (
	// MaxVariants caps the number of variants kept per product
	MaxVariants = 100
	// MaxReviews caps the number of reviews kept per product
	MaxReviews = 100
)

// NormalizeVariants maps raw variant objects into canonical variants.
// axisNames names the positional option1..option3 fields some platforms use.
func NormalizeVariants(raws []models.RawRecord, axisNames []string, source models.SourceType, base string) []models.ProductVariant {
	var out []models.ProductVariant
	for i, raw := range raws {
		if len(out) == MaxVariants {
			break
		}
		if raw == nil {
			continue
		}
		options := variantOptions(raw, axisNames)

		title := String(raw, "title", "name", "variant_title", "variantTitle")
		if title == "" && len(options) > 0 {
			title = joinOptionValues(options, axisNames)
		}
		if title == "" {
			title = fmt.Sprintf("Variant %d", i+1)
		}

		id := String(raw, "id", "variant_id", "variantId", "sku_id", "skuId")
		if id == "" {
			id = fmt.Sprintf("variant-%d", i+1)
		}

		stock, hasStock := 0, false
		if v, ok := Lookup(raw, "stock", "inventory_quantity", "inventoryQuantity", "quantity", "inventory", "stock_quantity"); ok {
			stock, hasStock = ParseStock(v)
		}
		available := hasStock && stock > 0
		if flag, ok := Bool(raw, "available", "in_stock", "inStock"); ok {
			available = flag && (!hasStock || stock > 0)
		}

		variant := models.ProductVariant{
			ID:        id,
			SKU:       String(raw, "sku", "SKU", "seller_sku", "sellerSku"),
			Title:     title,
			Price:     priceOf(raw, "price", "sale_price", "salePrice", "amount"),
			Stock:     stock,
			Available: available,
			Barcode:   String(raw, "barcode", "gtin", "ean", "upc"),
			Options:   options,
		}
		if compare := priceOf(raw, "compare_at_price", "compareAtPrice", "original_price", "originalPrice", "list_price"); compare > 0 {
			variant.CompareAtPrice = &compare
		}
		if img := String(raw, "image", "image_url", "imageUrl", "image.src", "featured_image.src"); img != "" {
			if resolved := ResolveURL(img, base); resolved != "" {
				variant.ImageURL = UpgradeImageURL(resolved, source)
			}
		}
		out = append(out, variant)
	}
	return out
}

func priceOf(raw models.RawRecord, keys ...string) float64 {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return 0
	}
	return ParsePrice(v)
}

func variantOptions(raw models.RawRecord, axisNames []string) map[string]string {
	options := map[string]string{}

	if obj := Object(raw, "options", "attributes", "properties"); obj != nil {
		for name, value := range obj {
			if s := ToString(value); s != "" && strings.TrimSpace(name) != "" {
				options[NormalizeOptionName(name)] = s
			}
		}
	} else {
		// [{"name": "Color", "value": "Red"}]
		for _, item := range Objects(raw, "options", "attributes", "selectedOptions") {
			name := String(item, "name", "key")
			if value := String(item, "value"); name != "" && value != "" {
				options[NormalizeOptionName(name)] = value
			}
		}
	}

	if name, value := String(raw, "option_name", "optionName"), String(raw, "option_value", "optionValue"); name != "" && value != "" {
		options[NormalizeOptionName(name)] = value
	}

	for i := 1; i <= 3; i++ {
		value := String(raw, fmt.Sprintf("option%d", i))
		if value == "" || strings.EqualFold(value, "Default Title") {
			continue
		}
		name := fmt.Sprintf("Option %d", i)
		if i <= len(axisNames) && axisNames[i-1] != "" {
			name = axisNames[i-1]
		}
		options[NormalizeOptionName(name)] = value
	}

	if len(options) == 0 {
		return nil
	}
	return options
}

func joinOptionValues(options map[string]string, axisNames []string) string {
	var names []string
	seen := map[string]bool{}
	for _, axis := range axisNames {
		n := NormalizeOptionName(axis)
		if _, ok := options[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range options {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	values := make([]string, 0, len(names))
	for _, n := range names {
		values = append(values, options[n])
	}
	return strings.Join(values, " / ")
}

// BuildOptions collects the option axes and their values across variants,
// in first-seen order.
func BuildOptions(variants []models.ProductVariant) []models.ProductOption {
	var options []models.ProductOption
	index := map[string]int{}
	seenValue := map[string]bool{}
	for _, v := range variants {
		names := make([]string, 0, len(v.Options))
		for name := range v.Options {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := v.Options[name]
			pos, ok := index[name]
			if !ok {
				pos = len(options)
				index[name] = pos
				options = append(options, models.ProductOption{Name: name})
			}
			if key := name + "\x00" + value; !seenValue[key] {
				seenValue[key] = true
				options[pos].Values = append(options[pos].Values, value)
			}
		}
	}
	return options
}

var reviewDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate accepts the date layouts seen in review payloads
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range reviewDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeReviews keeps up to MaxReviews reviews that carry a usable rating
func NormalizeReviews(raws []models.RawRecord, source models.SourceType, base string, now time.Time) []models.ProductReview {
	var out []models.ProductReview
	for i, raw := range raws {
		if i == MaxReviews {
			break
		}
		ratingValue, ok := Lookup(raw, "rating", "stars", "score", "reviewRating.ratingValue")
		if !ok {
			continue
		}
		rating, ok := NormalizeRating(ratingValue)
		if !ok {
			continue
		}

		author := String(raw, "author", "author.name", "reviewer", "user", "name")
		if author == "" {
			author = "Anonymous"
		}
		date, ok := ParseDate(String(raw, "date", "created_at", "createdAt", "datePublished"))
		if !ok {
			date = now
		}
		verified, _ := Bool(raw, "verified", "verified_purchase", "verifiedPurchase")

		id := String(raw, "id", "review_id", "reviewId")
		if id == "" {
			id = fmt.Sprintf("review-%d", i+1)
		}

		out = append(out, models.ProductReview{
			ID:       id,
			Author:   author,
			Rating:   rating,
			Title:    String(raw, "title", "headline"),
			Content:  String(raw, "content", "body", "text", "reviewBody", "comment"),
			Date:     date,
			Verified: verified,
			Images:   NormalizeImages(Strings(raw, "images", "photos"), source, base),
		})
	}
	return out
}
