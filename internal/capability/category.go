package capability

import (
	"strings"
	"unicode"

	"product-import-service/internal/models"
)

// categoryKeywords maps every internal category to the English and French
// terms upstream labels use for it. Entries are checked in order, first
// match wins.
var categoryKeywords = []struct {
	Category models.Category
	Keywords []string
}{
	{models.CategoryElectronics, []string{
		"electronics", "electronic", "tech", "gadget", "computer", "phone", "smartphone", "mobile",
		"tablet", "laptop", "audio", "headphone", "earbud", "speaker", "camera", "tv", "television",
		"gaming", "console",
		"électronique", "electronique", "informatique", "ordinateur", "téléphone", "telephone",
		"portable", "tablette", "casque", "écouteur", "ecouteur", "enceinte", "appareil photo",
		"téléviseur", "televiseur", "jeux vidéo", "jeux video",
	}},
	{models.CategoryShoes, []string{
		"shoes", "shoe", "footwear", "sneaker", "boot", "sandal", "heel", "flat", "loafer",
		"athletic shoes",
		"chaussure", "basket", "botte", "bottine", "sandale", "escarpin", "mocassin",
	}},
	{models.CategoryClothing, []string{
		"clothing", "apparel", "fashion", "clothes", "wear", "shirt", "t-shirt", "pant", "trouser",
		"dress", "jacket", "coat", "sweater", "hoodie", "top", "bottom", "jean", "activewear",
		"sportswear", "lingerie",
		"vêtement", "vetement", "mode", "habillement", "chemise", "pantalon", "robe", "veste",
		"manteau", "pull", "sweat", "jupe",
	}},
	{models.CategoryAccessories, []string{
		"accessories", "accessory", "jewelry", "jewellery", "watch", "bag", "handbag", "wallet",
		"belt", "hat", "scarf", "scarves", "sunglasses", "eyewear",
		"accessoire", "bijou", "bijoux", "montre", "sac", "sac à main", "portefeuille", "ceinture",
		"chapeau", "écharpe", "echarpe", "lunettes",
	}},
	{models.CategoryBaby, []string{
		"baby", "infant", "toddler", "nursery", "stroller", "car seat", "diaper", "feeding",
		"bébé", "bebe", "nourrisson", "puériculture", "puericulture", "poussette", "couche",
		"siège auto", "siege auto",
	}},
	{models.CategoryHome, []string{
		"home", "furniture", "decor", "decoration", "kitchen", "bedroom", "bathroom", "living room",
		"garden", "patio", "lighting", "storage", "household",
		"maison", "meuble", "mobilier", "décoration", "déco", "deco", "cuisine", "chambre",
		"salle de bain", "salon", "jardin", "luminaire", "éclairage", "eclairage", "rangement",
	}},
	{models.CategoryBeauty, []string{
		"beauty", "cosmetic", "makeup", "skincare", "haircare", "fragrance", "perfume",
		"personal care", "grooming",
		"beauté", "beaute", "cosmétique", "cosmetique", "maquillage", "soin", "parfum", "coiffure",
	}},
	{models.CategoryHealth, []string{
		"health", "wellness", "supplement", "vitamin", "medical", "pharmacy", "nutrition",
		"santé", "sante", "bien-être", "bien etre", "complément", "complement", "vitamine",
		"médical", "pharmacie",
	}},
	{models.CategoryToys, []string{
		"toys", "toy", "game", "puzzle", "doll", "action figure", "board game", "educational toy",
		"jouet", "jeu", "jeux", "poupée", "poupee", "figurine", "jeu de société",
	}},
	{models.CategorySports, []string{
		"sports", "sport", "fitness", "exercise", "gym", "outdoor", "camping", "hiking", "cycling",
		"running", "swimming", "yoga",
		"randonnée", "randonnee", "vélo", "velo", "cyclisme", "course à pied", "natation",
		"musculation", "plein air",
	}},
	{models.CategoryAutomotive, []string{
		"automotive", "car", "vehicle", "auto parts", "motorcycle", "tool", "garage",
		"automobile", "voiture", "véhicule", "vehicule", "pièces auto", "pieces auto", "moto",
		"outil", "bricolage",
	}},
	{models.CategoryBooks, []string{
		"books", "book", "ebook", "audiobook", "magazine", "comic", "textbook", "literature",
		"livre", "livres", "bande dessinée", "bande dessinee", "manga", "littérature", "litterature",
	}},
	{models.CategoryMusic, []string{
		"music", "instrument", "vinyl", "record", "cd", "musical equipment",
		"musique", "vinyle", "disque",
	}},
	{models.CategoryPet, []string{
		"pet", "pets", "dog", "cat", "fish", "bird", "animal", "pet supplies", "pet food",
		"animalerie", "animaux", "chien", "chat", "poisson", "oiseau",
	}},
	{models.CategoryFood, []string{
		"food", "grocery", "gourmet", "snack", "beverage", "drink", "organic", "specialty foods",
		"alimentation", "épicerie", "epicerie", "boisson", "bio", "gastronomie",
	}},
	{models.CategoryOffice, []string{
		"office", "supplies", "stationery", "desk", "organization", "printing", "school supplies",
		"bureau", "fournitures", "papeterie", "imprimante", "fournitures scolaires",
	}},
	{models.CategoryArt, []string{
		"art", "arts", "craft", "crafts", "diy", "painting", "drawing", "sewing", "knitting",
		"scrapbooking",
		"loisirs créatifs", "loisirs creatifs", "peinture", "dessin", "couture", "tricot",
	}},
}

var knownCategories = func() map[models.Category]bool {
	out := map[models.Category]bool{}
	for _, entry := range categoryKeywords {
		out[entry.Category] = true
	}
	return out
}()

// MapCategory maps a free-text label onto the internal category set.
// Unknown or empty labels map to uncategorized.
func MapCategory(label string) models.Category {
	normalized := normalizeLabel(label)
	if normalized == "" {
		return models.CategoryUncategorized
	}
	if c := models.Category(normalized); knownCategories[c] {
		return c
	}

	padded := " " + normalized + " "
	for _, entry := range categoryKeywords {
		for _, keyword := range entry.Keywords {
			if matchesKeyword(padded, keyword) {
				return entry.Category
			}
		}
	}
	return models.CategoryUncategorized
}

// MapCategoryPath maps the first label of a category path that resolves
func MapCategoryPath(labels ...string) models.Category {
	for _, label := range labels {
		if c := MapCategory(label); c != models.CategoryUncategorized {
			return c
		}
	}
	return models.CategoryUncategorized
}

// SplitCategoryPath splits "Home > Kitchen / Knives" into its segments
func SplitCategoryPath(path string) []string {
	fields := strings.FieldsFunc(path, func(r rune) bool {
		return r == '>' || r == '/' || r == '|' || r == '»' || r == '\\'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func matchesKeyword(padded, keyword string) bool {
	for _, suffix := range []string{"", "s", "es"} {
		if strings.Contains(padded, " "+keyword+suffix+" ") {
			return true
		}
	}
	return false
}

func normalizeLabel(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	var b strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
