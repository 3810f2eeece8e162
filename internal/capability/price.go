package capability

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when neither the price nor the record names one
const DefaultCurrency = "EUR"

var (
	priceCharsRe   = regexp.MustCompile(`[^0-9.,]`)
	isoCurrencyRe  = regexp.MustCompile(`\b([A-Z]{3})\b`)
	currencySymbol = map[string]string{
		"€":   "EUR",
		"$":   "USD",
		"US$": "USD",
		"£":   "GBP",
		"¥":   "JPY",
		"₹":   "INR",
		"C$":  "CAD",
		"A$":  "AUD",
		"CHF": "CHF",
	}
	knownCurrencies = map[string]bool{
		"EUR": true, "USD": true, "GBP": true, "JPY": true, "INR": true,
		"CAD": true, "AUD": true, "CNY": true, "CHF": true,
	}
)

// ParsePrice accepts numeric or string input and returns the amount rounded
// to cents. Comma is treated as the decimal separator unless a later dot
// shows it is a thousands separator. Unparseable input yields 0.
func ParsePrice(v interface{}) float64 {
	var d decimal.Decimal
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		d = decimal.NewFromFloat(t)
	case float32:
		return ParsePrice(float64(t))
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return 0
		}
		d = parsed
	case string:
		parsed, ok := parsePriceString(t)
		if !ok {
			return 0
		}
		d = parsed
	default:
		if m, ok := asMap(v); ok {
			for _, key := range []string{"value", "amount", "price"} {
				if inner, found := m[key]; found {
					return ParsePrice(inner)
				}
			}
		}
		return 0
	}
	if d.IsNegative() {
		return 0
	}
	f, _ := d.Round(2).Float64()
	return f
}

func parsePriceString(s string) (decimal.Decimal, bool) {
	numeric := priceCharsRe.ReplaceAllString(s, "")
	if numeric == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(numeric, ",")
	lastDot := strings.LastIndex(numeric, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			numeric = strings.ReplaceAll(numeric, ".", "")
			numeric = strings.Replace(numeric, ",", ".", 1)
		} else {
			// 1,234.56
			numeric = strings.ReplaceAll(numeric, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(numeric, ",") > 1 {
			numeric = strings.ReplaceAll(numeric, ",", "")
		} else {
			numeric = strings.Replace(numeric, ",", ".", 1)
		}
	case strings.Count(numeric, ".") > 1:
		numeric = strings.ReplaceAll(numeric, ".", "")
	}

	numeric = strings.Trim(numeric, ".")
	if numeric == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(numeric)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseCurrency resolves an ISO code from a currency field or a price string.
// It returns "" when nothing recognizable is present.
func ParseCurrency(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	upper := strings.ToUpper(s)
	if len(upper) == 3 && knownCurrencies[upper] {
		return upper
	}
	if code, found := currencySymbol[upper]; found {
		return code
	}
	if m := isoCurrencyRe.FindStringSubmatch(upper); m != nil && knownCurrencies[m[1]] {
		return m[1]
	}
	for _, symbol := range []string{"US$", "C$", "A$", "€", "£", "¥", "₹", "$"} {
		if strings.Contains(s, symbol) {
			return currencySymbol[symbol]
		}
	}
	if len(upper) == 3 && isoCurrencyRe.MatchString(upper) {
		return upper
	}
	return ""
}

// ResolveCurrency picks the explicit currency, then the one embedded in the
// price string, then DefaultCurrency.
func ResolveCurrency(currency, price interface{}) string {
	if code := ParseCurrency(currency); code != "" {
		return code
	}
	if code := ParseCurrency(price); code != "" {
		return code
	}
	return DefaultCurrency
}

// ParseStock accepts a number, a numeric string, or an object carrying
// "quantity" or "available". Negative counts clamp to zero.
func ParseStock(v interface{}) (int, bool) {
	if m, ok := asMap(v); ok {
		for _, key := range []string{"quantity", "available"} {
			if inner, found := m[key]; found {
				if _, isBool := inner.(bool); isBool {
					continue
				}
				return ParseStock(inner)
			}
		}
		return 0, false
	}
	if s, isString := v.(string); isString {
		negative := strings.HasPrefix(strings.TrimSpace(s), "-")
		digits := priceCharsRe.ReplaceAllString(s, "")
		digits = strings.NewReplacer(",", "", ".", "").Replace(digits)
		if digits == "" {
			return 0, false
		}
		if negative {
			return 0, true
		}
		v = digits
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	return int(math.Round(f)), true
}

// NormalizeRating rescales 10- and 100-point ratings onto 0-5, rounded to one decimal
func NormalizeRating(v interface{}) (float64, bool) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, false
	}
	var r float64
	switch {
	case f < 0:
		return 0, false
	case f <= 5:
		r = f
	case f <= 10:
		r = f / 2
	case f <= 100:
		r = f / 20
	default:
		return 0, false
	}
	return math.Round(r*10) / 10, true
}

var weightUnits = map[string]string{
	"kg": "kg", "kgs": "kg", "kilogram": "kg", "kilograms": "kg", "kilogramme": "kg",
	"g": "g", "gr": "g", "gram": "g", "grams": "g", "gramme": "g", "grammes": "g",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
}

// NormalizeWeightUnit maps unit spellings onto kg, g, lb or oz (default kg)
func NormalizeWeightUnit(unit string) string {
	if u, ok := weightUnits[strings.ToLower(strings.TrimSpace(unit))]; ok {
		return u
	}
	return "kg"
}

var weightRe = regexp.MustCompile(`(?i)^\s*([0-9]+(?:[.,][0-9]+)?)\s*([a-z]*)\s*$`)

// ParseWeight accepts "1.5 kg", "500g" or a bare number with a separate unit
func ParseWeight(v interface{}, unit string) (*float64, string) {
	if s, ok := v.(string); ok {
		if m := weightRe.FindStringSubmatch(s); m != nil {
			f, parsed := ToFloat(m[1])
			if !parsed || f <= 0 {
				return nil, ""
			}
			if unit == "" {
				unit = m[2]
			}
			return &f, NormalizeWeightUnit(unit)
		}
		return nil, ""
	}
	f, ok := ToFloat(v)
	if !ok || f <= 0 {
		return nil, ""
	}
	return &f, NormalizeWeightUnit(unit)
}
