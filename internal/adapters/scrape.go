package adapters

import (
	"context"

	"product-import-service/internal/clients"
	"product-import-service/internal/models"
)

// ScrapeAdapter handles marketplaces whose listings are read by the headless
// scraper (aliexpress, temu). Both return the same scrape-shaped payload.
type ScrapeAdapter struct {
	collector clients.Collector
	aliases   fieldAliases
}

// NewScrapeAdapter creates a new marketplace scrape adapter
func NewScrapeAdapter(collector clients.Collector) *ScrapeAdapter {
	return &ScrapeAdapter{
		collector: collector,
		aliases: extendAliases(fieldAliases{
			Title:          []string{"subject", "goods_name", "goodsName", "titleModule.subject"},
			Description:    []string{"detail", "description_html", "goods_desc", "descriptionModule.text"},
			Price:          []string{"sale_price.min", "salePrice.min", "priceModule.minActivityAmount.value", "priceModule.minAmount.value", "min_price", "goods_price", "price_info.price"},
			CompareAtPrice: []string{"priceModule.maxAmount.value", "market_price", "marketPrice", "price_info.market_price"},
			Currency:       []string{"priceModule.minAmount.currency", "price_info.currency"},
			Images:         []string{"image_list", "imagePathList", "imageModule.imagePathList", "gallery", "goods_gallery", "hd_images"},
			Videos:         []string{"video_list", "imageModule.videoUid", "goods_video"},
			Category:       []string{"category_name", "categoryName", "crossLinkModule.breadCrumbPathList", "cat_name"},
			Stock:          []string{"totalAvailQuantity", "quantityModule.totalAvailQuantity", "stock_num", "inventory_num"},
			Variants:       []string{"sku_list", "skuInfos", "skuModule.skuPriceList", "sku_info"},
			Options:        []string{"skuModule.productSKUPropertyList", "sku_props", "spec_list"},
			Attributes:     []string{"specsModule.props", "goods_property", "product_props"},
			Rating:         []string{"evaluation.starRating", "titleModule.feedbackRating.averageStar", "goods_rating", "score"},
			ReviewCount:    []string{"titleModule.feedbackRating.totalValidNum", "comment_num", "review_num"},
			SoldCount:      []string{"tradeCount", "titleModule.tradeCount", "sales_num", "sold_quantity"},
			SourceID:       []string{"productId", "product_id", "goods_id", "goodsId"},
			Shipping:       []string{"shippingModule", "logistics", "freight"},
			Supplier:       []string{"storeModule", "store_info", "mall_info", "seller"},
		}),
	}
}

func (a *ScrapeAdapter) Name() string {
	return "marketplace-scrape"
}

// Extract returns the pre-fetched payload when present, otherwise asks the
// collector to scrape the listing.
func (a *ScrapeAdapter) Extract(ctx context.Context, req *models.ImportRequest) ([]models.RawRecord, error) {
	if req.Data != nil {
		records, err := RecordsFromData(req.Data)
		if err != nil {
			return nil, err
		}
		return TagRecords(records, models.ExtractionMarkupScrape), nil
	}
	if err := requireURL(req); err != nil {
		return nil, err
	}
	records, err := a.collector.ScrapeProduct(ctx, req.Source, req.URL, collectOptions(req))
	if err != nil {
		return nil, err
	}
	return TagRecords(records, models.ExtractionHeadlessFetch), nil
}

func (a *ScrapeAdapter) Normalize(raw models.RawRecord, opts NormalizeOptions) (*models.NormalizedProduct, error) {
	return mapProduct(raw, opts, a.aliases, RecordKind(raw, models.ExtractionHeadlessFetch))
}
