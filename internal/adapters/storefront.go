package adapters

import (
	"context"
	"strings"

	"product-import-service/internal/capability"
	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// StorefrontAdapter handles marketplaces read through their catalog APIs
// (amazon, ebay).
type StorefrontAdapter struct {
	collector clients.Collector
	aliases   fieldAliases
}

// NewStorefrontAdapter creates a new storefront API adapter
func NewStorefrontAdapter(collector clients.Collector) *StorefrontAdapter {
	return &StorefrontAdapter{
		collector: collector,
		aliases: extendAliases(fieldAliases{
			Title:          []string{"product_title", "item_title", "Title"},
			Description:    []string{"product_description", "shortDescription", "Description"},
			Price:          []string{"buybox_winner.price.value", "pricing.price", "currentPrice.value", "sellingStatus.currentPrice.value", "price.value", "CurrentPrice"},
			CompareAtPrice: []string{"buybox_winner.rrp.value", "list_price.value", "marketingPrice.originalPrice.value"},
			Currency:       []string{"buybox_winner.price.currency", "currentPrice.currency", "price.currency", "currencyId"},
			Images:         []string{"images_flat", "images", "main_image.link", "image.imageUrl", "additionalImages", "galleryURL", "PictureURL"},
			Category:       []string{"categories_flat", "categories", "categoryPath", "primaryCategory.categoryName", "PrimaryCategoryName"},
			Brand:          []string{"brand", "byline_info", "manufacturer", "localizedAspects.Brand"},
			Stock:          []string{"estimatedAvailabilities.estimatedAvailableQuantity", "Quantity"},
			Availability:   []string{"availability.raw", "availability.type", "estimatedAvailabilities.estimatedAvailabilityStatus"},
			Variants:       []string{"variants", "itemGroupVariants", "Variations.Variation"},
			Attributes:     []string{"specifications", "specifications_flat", "localizedAspects", "ItemSpecifics.NameValueList"},
			Rating:         []string{"rating", "product_rating", "reviewRating.averageRating"},
			ReviewCount:    []string{"ratings_total", "reviewRating.reviewCount"},
			SoldCount:      []string{"bought_last_month", "QuantitySold", "sold"},
			Reviews:        []string{"top_reviews", "reviews"},
			SourceURL:      []string{"link", "itemWebUrl", "ViewItemURLForNaturalSearch"},
			SourceID:       []string{"asin", "itemId", "ItemID", "legacyItemId"},
			Shipping:       []string{"shippingOptions", "delivery", "ShippingCostSummary"},
			Supplier:       []string{"seller", "buybox_winner.fulfillment.third_party_seller", "Seller"},
		}),
	}
}

func (a *StorefrontAdapter) Name() string {
	return "storefront-api"
}

// Extract returns the supplied payload or reads the listing through the
// marketplace catalog API.
func (a *StorefrontAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	if req.Data != nil {
		records, err := RecordsFromData(req.Data)
		if err != nil {
			return nil, err
		}
		return TagRecords(records, models.ExtractionAPI), nil
	}
	if err := requireURL(req); err != nil {
		return nil, err
	}
	records, err := a.collector.FetchCatalog(ctx, req.Source, req.URL, collectOptions(req))
	if err != nil {
		return nil, err
	}
	return TagRecords(records, models.ExtractionAPI), nil
}

func (a *StorefrontAdapter) Normalize(raw models.RawRecord, opts NormalizeOptions) (*models.NormalizedProduct, error) {
	p, err := mapProduct(raw, opts, a.aliases, RecordKind(raw, models.ExtractionAPI))
	if err != nil {
		return nil, err
	}

	// Listings often carry only bullet points
	if p.Description == "" {
		bullets := capability.Strings(raw, "feature_bullets", "about_item", "features", "bullet_points")
		if len(bullets) > 0 {
			p.Description = "<ul><li>" + strings.Join(bullets, "</li><li>") + "</li></ul>"
			fs := capability.CreateAttribution(RecordKind(raw, models.ExtractionAPI), -1)
			p.Attribution = capability.Attribute(p.Attribution, fs, "description")
		}
	}

	if condition := capability.String(raw, "condition", "conditionDisplayName", "ConditionDisplayName"); condition != "" {
		if p.Attributes == nil {
			p.Attributes = map[string][]string{}
		}
		p.Attributes["Condition"] = []string{condition}
	}
	return p, nil
}
