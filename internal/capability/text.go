package capability

import (
	"regexp"
	"sort"
	"strings"

	"product-import-service/internal/models"
)

const (
	maxTags         = 30
	maxTagLength    = 50
	maxAttrKey      = 100
	maxAttrValueLen = 500
)

var (
	spamPrefixRe = regexp.MustCompile(`(?i)^(buy|shop|order|get)\s+`)
	spamSuffixRe = regexp.MustCompile(`(?i)[\s,\-|]+(free shipping|fast delivery|best price|hot sale|livraison gratuite)$`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// CleanTitle collapses whitespace and strips marketplace spam prefixes and suffixes
func CleanTitle(title string) string {
	title = spaceRe.ReplaceAllString(strings.TrimSpace(title), " ")
	title = spamPrefixRe.ReplaceAllString(title, "")
	title = spamSuffixRe.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// InferAvailability maps availability text, falling back to the stock count
func InferAvailability(text string, stock *int) models.Availability {
	lower := strings.ToLower(strings.TrimSpace(text))
	// schema.org values arrive as full URLs
	lower = strings.TrimPrefix(strings.TrimPrefix(lower, "https://schema.org/"), "http://schema.org/")
	switch {
	case lower == "":
	case strings.Contains(lower, "out of stock"), strings.Contains(lower, "unavailable"),
		lower == "outofstock", lower == "soldout", strings.Contains(lower, "sold out"),
		strings.Contains(lower, "rupture"), strings.Contains(lower, "épuisé"),
		strings.Contains(lower, "indisponible"):
		return models.AvailabilityOutOfStock
	case strings.Contains(lower, "preorder"), strings.Contains(lower, "pre-order"),
		strings.Contains(lower, "backorder"), strings.Contains(lower, "précommande"):
		return models.AvailabilityPreorder
	case strings.Contains(lower, "in stock"), strings.Contains(lower, "available"),
		lower == "instock", strings.Contains(lower, "en stock"), strings.Contains(lower, "disponible"):
		return models.AvailabilityInStock
	}
	if stock != nil {
		if *stock > 0 {
			return models.AvailabilityInStock
		}
		return models.AvailabilityOutOfStock
	}
	return models.AvailabilityUnknown
}

// NormalizeTags lowercases, trims and deduplicates tags
func NormalizeTags(tags []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" || len([]rune(t)) > maxTagLength || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// NormalizeAttributes converts a loosely typed attribute object into name -> values
func NormalizeAttributes(v interface{}) map[string][]string {
	out := map[string][]string{}
	add := func(key string, value interface{}) {
		key = strings.TrimSpace(key)
		if key == "" || len(key) > maxAttrKey {
			return
		}
		for _, s := range attributeValues(value) {
			if s == "" || len(s) > maxAttrValueLen {
				continue
			}
			out[key] = append(out[key], s)
		}
	}

	if m, ok := asMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, m[k])
		}
	} else if items, ok := v.([]interface{}); ok {
		// [{"name": "Material", "value": "Cotton"}]
		for _, item := range items {
			obj, isMap := asMap(item)
			if !isMap {
				continue
			}
			name := ToString(obj["name"])
			if name == "" {
				name = ToString(obj["key"])
			}
			add(name, obj["value"])
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func attributeValues(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}, []string:
		return ToStrings(t)
	default:
		if s := ToString(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

var optionNames = map[string]string{
	"size":     "Size",
	"taille":   "Size",
	"pointure": "Size",
	"color":    "Color",
	"colour":   "Color",
	"couleur":  "Color",
	"material": "Material",
	"matière":  "Material",
	"matiere":  "Material",
	"style":    "Style",
	"type":     "Type",
	"modèle":   "Style",
	"modele":   "Style",
}

// NormalizeOptionName canonicalizes option axis names across languages
func NormalizeOptionName(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := optionNames[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	if trimmed == "" {
		return ""
	}
	runes := []rune(strings.ToLower(trimmed))
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
