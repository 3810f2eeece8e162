package capability

import (
	"net/url"
	"regexp"
	"strings"

	"product-import-service/internal/models"
)

// MaxImages caps the number of images kept per product
const MaxImages = 20

type rewriteRule struct {
	pattern *regexp.Regexp
	replace string
}

// imageUpgradeRules swap thumbnail path segments for the full-resolution
// equivalent, per source platform.
var imageUpgradeRules = map[models.SourceType][]rewriteRule{
	models.SourceAmazon: {
		{regexp.MustCompile(`\._[A-Z]{2}\d+_\.`), "._SL1500_."},
		{regexp.MustCompile(`\._S[XY]\d+_\.`), "._SL1500_."},
		{regexp.MustCompile(`\._AC_[A-Z]{2}\d+_\.`), "._AC_SL1500_."},
	},
	models.SourceAliExpress: {
		{regexp.MustCompile(`\.(jpe?g|png|webp)_\d+x\d+(q\d+)?\.(jpe?g|png|webp)(_\.webp)?$`), ".$1"},
		{regexp.MustCompile(`_\d+x\d+(q\d+)?\.`), "."},
	},
	models.SourceTemu: {
		{regexp.MustCompile(`thumb/`), ""},
		{regexp.MustCompile(`_thumbnail`), ""},
		{regexp.MustCompile(`\?imageView2/.*$`), ""},
	},
	models.SourceEbay: {
		{regexp.MustCompile(`s-l\d+\.`), "s-l1600."},
	},
	models.SourceShopify: {
		{regexp.MustCompile(`_(\d+x\d*|\d*x\d+|pico|icon|thumb|small|compact|medium|large|grande)(@\dx)?\.`), "."},
	},
}

// imageHosts lets the rules apply to images whose request source is not the
// platform itself (a CSV export of AliExpress listings, a generic URL import).
var imageHosts = []struct {
	token  string
	source models.SourceType
}{
	{"media-amazon.com", models.SourceAmazon},
	{"images-amazon.com", models.SourceAmazon},
	{"ssl-images-amazon", models.SourceAmazon},
	{"alicdn.com", models.SourceAliExpress},
	{"aliexpress", models.SourceAliExpress},
	{"kwcdn.com", models.SourceTemu},
	{"temu.com", models.SourceTemu},
	{"ebayimg.com", models.SourceEbay},
	{"cdn.shopify.com", models.SourceShopify},
}

// UpgradeImageURL rewrites a thumbnail URL into its high-resolution form.
// URLs matching no rule are returned unchanged.
func UpgradeImageURL(rawURL string, source models.SourceType) string {
	rules, ok := imageUpgradeRules[source]
	if !ok {
		lower := strings.ToLower(rawURL)
		for _, host := range imageHosts {
			if strings.Contains(lower, host.token) {
				rules = imageUpgradeRules[host.source]
				break
			}
		}
	}
	upgraded := rawURL
	for _, rule := range rules {
		upgraded = rule.pattern.ReplaceAllString(upgraded, rule.replace)
	}
	return upgraded
}

// ResolveURL makes a URL absolute. Protocol-relative URLs become https, and
// relative paths resolve against base when one is given. Invalid, data: and
// non-http(s) URLs yield "".
func ResolveURL(raw, base string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "data:") {
		return ""
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		u = b.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// NormalizeImages resolves, upgrades and deduplicates image URLs, keeping the
// first occurrence order and at most MaxImages entries.
func NormalizeImages(urls []string, source models.SourceType, base string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		resolved := ResolveURL(raw, base)
		if len(resolved) < 10 {
			continue
		}
		upgraded := UpgradeImageURL(resolved, source)
		if seen[upgraded] {
			continue
		}
		seen[upgraded] = true
		out = append(out, upgraded)
		if len(out) == MaxImages {
			break
		}
	}
	return out
}

var videoTokens = []string{"youtube.com", "youtu.be", "vimeo.com", ".mp4", ".webm"}

// NormalizeVideos keeps well-formed URLs pointing at known video hosts or files
func NormalizeVideos(urls []string, base string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range urls {
		resolved := ResolveURL(raw, base)
		if resolved == "" || seen[resolved] {
			continue
		}
		lower := strings.ToLower(resolved)
		for _, token := range videoTokens {
			if strings.Contains(lower, token) {
				seen[resolved] = true
				out = append(out, resolved)
				break
			}
		}
	}
	return out
}
