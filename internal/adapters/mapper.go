package adapters

import (
	"time"

	"product-import-service/internal/capability"
	"product-import-service/internal/models"
)

// fieldAliases lists, per canonical field, the upstream keys tried in order
type fieldAliases struct {
	Title          []string
	Description    []string
	Price          []string
	CostPrice      []string
	CompareAtPrice []string
	Currency       []string
	SKU            []string
	Barcode        []string
	Images         []string
	Videos         []string
	Category       []string
	Brand          []string
	Stock          []string
	Availability   []string
	Weight         []string
	WeightUnit     []string
	Variants       []string
	Options        []string
	Attributes     []string
	Tags           []string
	Rating         []string
	ReviewCount    []string
	SoldCount      []string
	Reviews        []string
	SourceURL      []string
	SourceID       []string
	SEOTitle       []string
	SEODescription []string
	Shipping       []string
	Supplier       []string
}

// commonAliases covers the field names shared by most upstream payloads
var commonAliases = fieldAliases{
	Title:          []string{"title", "name", "product_title", "productTitle", "product_name", "productName"},
	Description:    []string{"description", "body_html", "bodyHtml", "desc", "product_description", "long_description"},
	Price:          []string{"price", "sale_price", "salePrice", "current_price", "currentPrice", "offers.price", "price.value", "amount"},
	CostPrice:      []string{"cost_price", "costPrice", "cost", "supplier_price", "purchase_price"},
	CompareAtPrice: []string{"compare_at_price", "compareAtPrice", "original_price", "originalPrice", "regular_price", "list_price", "msrp"},
	Currency:       []string{"currency", "currency_code", "currencyCode", "offers.priceCurrency", "price.currency"},
	SKU:            []string{"sku", "SKU", "product_sku", "reference", "ref", "item_number"},
	Barcode:        []string{"barcode", "gtin", "gtin13", "ean", "upc", "isbn"},
	Images:         []string{"images", "image_urls", "imageUrls", "image", "image_url", "imageUrl", "photos", "pictures", "main_image"},
	Videos:         []string{"videos", "video_urls", "videoUrls", "video", "video_url"},
	Category:       []string{"category_path", "categoryPath", "category", "categories", "product_type", "productType", "breadcrumbs"},
	Brand:          []string{"brand", "brand.name", "vendor", "manufacturer", "marque"},
	Stock:          []string{"stock", "stock_quantity", "stockQuantity", "quantity", "inventory", "inventory_quantity", "qty"},
	Availability:   []string{"availability", "offers.availability", "stock_status", "stockStatus", "status_text"},
	Weight:         []string{"weight", "shipping_weight", "weight_value", "poids"},
	WeightUnit:     []string{"weight_unit", "weightUnit", "unit"},
	Variants:       []string{"variants", "variations", "skus", "sku_list"},
	Options:        []string{"options", "option_names", "optionNames"},
	Attributes:     []string{"attributes", "specifications", "specs", "properties", "features_map"},
	Tags:           []string{"tags", "keywords", "labels"},
	Rating:         []string{"rating", "average_rating", "averageRating", "stars", "aggregateRating.ratingValue"},
	ReviewCount:    []string{"reviews_count", "review_count", "reviewCount", "ratings_total", "aggregateRating.reviewCount"},
	SoldCount:      []string{"sold_count", "soldCount", "orders", "sales", "trade_count"},
	Reviews:        []string{"reviews", "comments", "feedback"},
	SourceURL:      []string{"url", "source_url", "sourceUrl", "product_url", "productUrl", "link"},
	SourceID:       []string{"id", "product_id", "productId", "source_id", "sourceId", "item_id", "itemId"},
	SEOTitle:       []string{"seo_title", "seoTitle", "meta_title", "metaTitle"},
	SEODescription: []string{"seo_description", "seoDescription", "meta_description", "metaDescription"},
	Shipping:       []string{"shipping", "shipping_info", "shippingInfo", "delivery"},
	Supplier:       []string{"supplier", "seller", "store", "shop"},
}

// extendAliases puts the adapter-specific keys ahead of the common ones
func extendAliases(specific fieldAliases) fieldAliases {
	merge := func(first, rest []string) []string {
		if len(first) == 0 {
			return rest
		}
		out := make([]string, 0, len(first)+len(rest))
		return append(append(out, first...), rest...)
	}
	c := commonAliases
	return fieldAliases{
		Title:          merge(specific.Title, c.Title),
		Description:    merge(specific.Description, c.Description),
		Price:          merge(specific.Price, c.Price),
		CostPrice:      merge(specific.CostPrice, c.CostPrice),
		CompareAtPrice: merge(specific.CompareAtPrice, c.CompareAtPrice),
		Currency:       merge(specific.Currency, c.Currency),
		SKU:            merge(specific.SKU, c.SKU),
		Barcode:        merge(specific.Barcode, c.Barcode),
		Images:         merge(specific.Images, c.Images),
		Videos:         merge(specific.Videos, c.Videos),
		Category:       merge(specific.Category, c.Category),
		Brand:          merge(specific.Brand, c.Brand),
		Stock:          merge(specific.Stock, c.Stock),
		Availability:   merge(specific.Availability, c.Availability),
		Weight:         merge(specific.Weight, c.Weight),
		WeightUnit:     merge(specific.WeightUnit, c.WeightUnit),
		Variants:       merge(specific.Variants, c.Variants),
		Options:        merge(specific.Options, c.Options),
		Attributes:     merge(specific.Attributes, c.Attributes),
		Tags:           merge(specific.Tags, c.Tags),
		Rating:         merge(specific.Rating, c.Rating),
		ReviewCount:    merge(specific.ReviewCount, c.ReviewCount),
		SoldCount:      merge(specific.SoldCount, c.SoldCount),
		Reviews:        merge(specific.Reviews, c.Reviews),
		SourceURL:      merge(specific.SourceURL, c.SourceURL),
		SourceID:       merge(specific.SourceID, c.SourceID),
		SEOTitle:       merge(specific.SEOTitle, c.SEOTitle),
		SEODescription: merge(specific.SEODescription, c.SEODescription),
		Shipping:       merge(specific.Shipping, c.Shipping),
		Supplier:       merge(specific.Supplier, c.Supplier),
	}
}

// mapProduct maps a raw record through the alias table. It applies defaults
// instead of failing and stamps attribution for every populated field with
// the record's extraction kind.
func mapProduct(raw models.RawRecord, opts NormalizeOptions, a fieldAliases, kind models.ExtractionKind) (*models.NormalizedProduct, error) {
	if err := checkMalformed(raw); err != nil {
		return nil, err
	}

	p := &models.NormalizedProduct{
		Title:          capability.CleanTitle(capability.String(raw, a.Title...)),
		Description:    capability.String(raw, a.Description...),
		SKU:            capability.String(raw, a.SKU...),
		Barcode:        capability.String(raw, a.Barcode...),
		Brand:          capability.String(raw, a.Brand...),
		SEOTitle:       capability.String(raw, a.SEOTitle...),
		SEODescription: capability.String(raw, a.SEODescription...),
		SourceID:       capability.String(raw, a.SourceID...),
		SourcePlatform: opts.Source,
	}

	priceValue, _ := capability.Lookup(raw, a.Price...)
	p.Price = capability.ParsePrice(priceValue)
	currencyValue, _ := capability.Lookup(raw, a.Currency...)
	p.Currency = capability.ResolveCurrency(currencyValue, priceValue)

	if v, ok := capability.Lookup(raw, a.CostPrice...); ok {
		if cost := capability.ParsePrice(v); cost > 0 {
			p.CostPrice = &cost
		}
	}
	if v, ok := capability.Lookup(raw, a.CompareAtPrice...); ok {
		if compare := capability.ParsePrice(v); compare > 0 {
			p.CompareAtPrice = &compare
		}
	}

	p.SourceURL = capability.ResolveURL(capability.String(raw, a.SourceURL...), opts.BaseURL)
	if p.SourceURL == "" && opts.BaseURL != "" {
		p.SourceURL = capability.ResolveURL(opts.BaseURL, "")
	}
	base := opts.BaseURL
	if base == "" {
		base = p.SourceURL
	}

	p.Images = capability.NormalizeImages(capability.Strings(raw, a.Images...), opts.Source, base)
	p.Videos = capability.NormalizeVideos(capability.Strings(raw, a.Videos...), base)

	if v, ok := capability.Lookup(raw, a.Category...); ok {
		if s, isString := v.(string); isString {
			p.CategoryPath = capability.SplitCategoryPath(s)
		} else {
			p.CategoryPath = capability.ToStrings(v)
		}
		p.Category = capability.MapCategoryPath(reversed(p.CategoryPath)...)
	}

	if v, ok := capability.Lookup(raw, a.Stock...); ok {
		if stock, parsed := capability.ParseStock(v); parsed {
			p.Stock = &stock
		}
	}
	p.Availability = capability.InferAvailability(capability.String(raw, a.Availability...), p.Stock)

	if v, ok := capability.Lookup(raw, a.Weight...); ok {
		p.Weight, p.WeightUnit = capability.ParseWeight(v, capability.String(raw, a.WeightUnit...))
	}

	if opts.IncludeVariants {
		axes := optionAxes(raw, a.Options)
		p.Variants = capability.NormalizeVariants(capability.Objects(raw, a.Variants...), axes, opts.Source, base)
		p.Options = capability.BuildOptions(p.Variants)
	}

	if v, ok := capability.Lookup(raw, a.Attributes...); ok {
		p.Attributes = capability.NormalizeAttributes(v)
	}
	p.Tags = capability.NormalizeTags(capability.Strings(raw, a.Tags...))

	if v, ok := capability.Lookup(raw, a.Rating...); ok {
		if rating, valid := capability.NormalizeRating(v); valid {
			p.Rating = &rating
		}
	}
	p.ReviewCount = capability.IntPtr(raw, a.ReviewCount...)
	p.SoldCount = capability.IntPtr(raw, a.SoldCount...)
	if opts.IncludeReviews {
		p.Reviews = capability.NormalizeReviews(capability.Objects(raw, a.Reviews...), opts.Source, base, time.Now().UTC())
	}

	p.Shipping = mapShipping(raw, a.Shipping)
	p.Supplier = mapSupplier(raw, a.Supplier, base)

	fillVariantPrices(p)

	fs := capability.CreateAttribution(kind, -1)
	p.Attribution = capability.Attribute(nil, fs, capability.PopulatedFields(p)...)
	applyFieldSources(p, raw)
	return p, nil
}

// optionAxes returns the declared option axis names, used to label the
// positional option1..option3 values of variants.
func optionAxes(raw models.RawRecord, keys []string) []string {
	var axes []string
	for _, obj := range capability.Objects(raw, keys...) {
		if name := capability.String(obj, "name", "title"); name != "" {
			axes = append(axes, name)
		}
	}
	if len(axes) > 0 {
		return axes
	}
	if v, ok := capability.Lookup(raw, keys...); ok {
		if _, isMap := v.(map[string]interface{}); !isMap {
			return capability.ToStrings(v)
		}
	}
	return nil
}

func mapShipping(raw models.RawRecord, keys []string) *models.ShippingInfo {
	obj := capability.Object(raw, keys...)
	flatCost, hasFlatCost := capability.Lookup(raw, "shipping_cost", "shippingCost", "shipping_price")
	if obj == nil && !hasFlatCost {
		return nil
	}
	info := &models.ShippingInfo{}
	if obj != nil {
		info.Free, _ = capability.Bool(obj, "free", "free_shipping", "isFree")
		if v, ok := capability.Lookup(obj, "cost", "price", "amount"); ok {
			cost := capability.ParsePrice(v)
			info.Cost = &cost
		}
		info.MinDays = capability.IntPtr(obj, "min_days", "minDays", "delivery_min")
		info.MaxDays = capability.IntPtr(obj, "max_days", "maxDays", "delivery_max")
		info.ShipsFrom = capability.String(obj, "ships_from", "shipsFrom", "from", "origin")
		info.Method = capability.String(obj, "method", "carrier", "service")
	}
	if info.Cost == nil && hasFlatCost {
		cost := capability.ParsePrice(flatCost)
		info.Cost = &cost
	}
	if info.Cost != nil && *info.Cost == 0 {
		info.Free = true
	}
	return info
}

func mapSupplier(raw models.RawRecord, keys []string, base string) *models.SupplierInfo {
	info := &models.SupplierInfo{}
	if obj := capability.Object(raw, keys...); obj != nil {
		info.Name = capability.String(obj, "name", "store_name", "storeName", "title")
		info.URL = capability.ResolveURL(capability.String(obj, "url", "link", "store_url"), base)
		if v, ok := capability.Lookup(obj, "rating", "positive_rate", "score"); ok {
			if rating, valid := capability.NormalizeRating(v); valid {
				info.Rating = &rating
			}
		}
	} else {
		info.Name = capability.String(raw, "supplier_name", "supplierName", "seller_name", "sellerName", "store_name")
		info.URL = capability.ResolveURL(capability.String(raw, "supplier_url", "supplierUrl", "seller_url", "store_url"), base)
	}
	if info.Name == "" && info.URL == "" {
		return nil
	}
	return info
}

// reversed returns the category path leaf first, so the most specific
// segment that maps wins.
func reversed(path []string) []string {
	out := make([]string, len(path))
	for i, s := range path {
		out[len(path)-1-i] = s
	}
	return out
}
