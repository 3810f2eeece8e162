package models

import (
	"time"
)

// Category is the closed set of internal catalog categories
type Category string

const (
	CategoryElectronics   Category = "electronics"
	CategoryClothing      Category = "clothing"
	CategoryShoes         Category = "shoes"
	CategoryAccessories   Category = "accessories"
	CategoryHome          Category = "home"
	CategoryBeauty        Category = "beauty"
	CategoryHealth        Category = "health"
	CategoryToys          Category = "toys"
	CategoryBaby          Category = "baby"
	CategorySports        Category = "sports"
	CategoryAutomotive    Category = "automotive"
	CategoryBooks         Category = "books"
	CategoryMusic         Category = "music"
	CategoryPet           Category = "pet"
	CategoryFood          Category = "food"
	CategoryOffice        Category = "office"
	CategoryArt           Category = "art"
	CategoryUncategorized Category = "uncategorized"
)

// ProductStatus is derived from the completeness score and never set directly
type ProductStatus string

const (
	ProductStatusDraft           ProductStatus = "draft"
	ProductStatusReady           ProductStatus = "ready"
	ProductStatusErrorIncomplete ProductStatus = "error_incomplete"
)

// Availability represents the normalized stock availability of a product
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityPreorder   Availability = "preorder"
	AvailabilityUnknown    Availability = "unknown"
)

// ExtractionKind identifies how a field value was obtained
type ExtractionKind string

const (
	ExtractionAPI           ExtractionKind = "api"
	ExtractionHeadlessFetch ExtractionKind = "headless-fetch"
	ExtractionMarkupScrape  ExtractionKind = "markup-scrape"
	ExtractionManual        ExtractionKind = "manual"
	ExtractionAIInferred    ExtractionKind = "ai-inferred"
)

// FieldSource records where a single field value came from and how much it is trusted
type FieldSource struct {
	Kind        ExtractionKind `json:"kind"`
	Confidence  int            `json:"confidence"` // 0-100
	ExtractedAt time.Time      `json:"extractedAt"`
}

// SourceAttribution maps a canonical field name to its provenance
type SourceAttribution map[string]FieldSource

// ProductVariant represents one purchasable variant of a product
type ProductVariant struct {
	ID             string            `json:"id"`
	SKU            string            `json:"sku,omitempty"`
	Title          string            `json:"title"`
	Price          float64           `json:"price"`
	CompareAtPrice *float64          `json:"compareAtPrice,omitempty"`
	Stock          int               `json:"stock"`
	Available      bool              `json:"available"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	Barcode        string            `json:"barcode,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
}

// ProductOption represents an option axis (size, color...) and its allowed values
type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// ProductReview represents a normalized customer review attached to an import
type ProductReview struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Rating   float64   `json:"rating"`
	Title    string    `json:"title,omitempty"`
	Content  string    `json:"content"`
	Date     time.Time `json:"date"`
	Verified bool      `json:"verified"`
	Images   []string  `json:"images,omitempty"`
}

// ShippingInfo describes shipping terms advertised by the source
type ShippingInfo struct {
	Free      bool     `json:"free"`
	Cost      *float64 `json:"cost,omitempty"`
	MinDays   *int     `json:"minDays,omitempty"`
	MaxDays   *int     `json:"maxDays,omitempty"`
	ShipsFrom string   `json:"shipsFrom,omitempty"`
	Method    string   `json:"method,omitempty"`
}

// SupplierInfo describes the seller or supplier of the product at the source
type SupplierInfo struct {
	Name   string   `json:"name,omitempty"`
	URL    string   `json:"url,omitempty"`
	Rating *float64 `json:"rating,omitempty"`
}

// NormalizedProduct is the canonical record every source is mapped into.
//
// CompletenessScore and Status are owned by capability.Finalize; adapters
// leave them zero.
type NormalizedProduct struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	CostPrice      *float64 `json:"costPrice,omitempty"`
	CompareAtPrice *float64 `json:"compareAtPrice,omitempty"`
	Currency       string   `json:"currency"`
	SKU            string   `json:"sku,omitempty"`
	Barcode        string   `json:"barcode,omitempty"`

	Images []string `json:"images"`
	Videos []string `json:"videos,omitempty"`

	Category     Category `json:"category"`
	CategoryPath []string `json:"categoryPath,omitempty"`
	Brand        string   `json:"brand,omitempty"`

	Stock        *int         `json:"stock,omitempty"`
	Availability Availability `json:"availability"`
	Weight       *float64     `json:"weight,omitempty"`
	WeightUnit   string       `json:"weightUnit,omitempty"`

	Variants   []ProductVariant    `json:"variants,omitempty"`
	Options    []ProductOption     `json:"options,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
	Tags       []string            `json:"tags,omitempty"`

	Rating      *float64        `json:"rating,omitempty"`
	ReviewCount *int            `json:"reviewCount,omitempty"`
	SoldCount   *int            `json:"soldCount,omitempty"`
	Reviews     []ProductReview `json:"reviews,omitempty"`

	SEOTitle       string `json:"seoTitle,omitempty"`
	SEODescription string `json:"seoDescription,omitempty"`

	SourceURL      string     `json:"sourceUrl,omitempty"`
	SourceID       string     `json:"sourceId,omitempty"`
	SourcePlatform SourceType `json:"sourcePlatform"`

	Shipping *ShippingInfo `json:"shipping,omitempty"`
	Supplier *SupplierInfo `json:"supplier,omitempty"`

	CompletenessScore int               `json:"completenessScore"`
	Attribution       SourceAttribution `json:"attribution"`
	Status            ProductStatus     `json:"status"`
	NormalizedAt      time.Time         `json:"normalizedAt"`
}

// HasVariants reports whether the product carries at least one variant
func (p *NormalizedProduct) HasVariants() bool {
	return len(p.Variants) > 0
}

// Clone returns a deep copy of the product
func (p *NormalizedProduct) Clone() *NormalizedProduct {
	c := *p
	c.CostPrice = cloneFloat(p.CostPrice)
	c.CompareAtPrice = cloneFloat(p.CompareAtPrice)
	c.Images = cloneStrings(p.Images)
	c.Videos = cloneStrings(p.Videos)
	c.CategoryPath = cloneStrings(p.CategoryPath)
	c.Tags = cloneStrings(p.Tags)
	c.Stock = cloneInt(p.Stock)
	c.Weight = cloneFloat(p.Weight)
	c.Rating = cloneFloat(p.Rating)
	c.ReviewCount = cloneInt(p.ReviewCount)
	c.SoldCount = cloneInt(p.SoldCount)

	if p.Variants != nil {
		c.Variants = make([]ProductVariant, len(p.Variants))
		for i, v := range p.Variants {
			v.CompareAtPrice = cloneFloat(v.CompareAtPrice)
			if v.Options != nil {
				opts := make(map[string]string, len(v.Options))
				for k, val := range v.Options {
					opts[k] = val
				}
				v.Options = opts
			}
			c.Variants[i] = v
		}
	}
	if p.Options != nil {
		c.Options = make([]ProductOption, len(p.Options))
		for i, o := range p.Options {
			c.Options[i] = ProductOption{Name: o.Name, Values: cloneStrings(o.Values)}
		}
	}
	if p.Attributes != nil {
		c.Attributes = make(map[string][]string, len(p.Attributes))
		for k, vals := range p.Attributes {
			c.Attributes[k] = cloneStrings(vals)
		}
	}
	if p.Reviews != nil {
		c.Reviews = make([]ProductReview, len(p.Reviews))
		for i, r := range p.Reviews {
			r.Images = cloneStrings(r.Images)
			c.Reviews[i] = r
		}
	}
	if p.Shipping != nil {
		s := *p.Shipping
		s.Cost = cloneFloat(s.Cost)
		s.MinDays = cloneInt(s.MinDays)
		s.MaxDays = cloneInt(s.MaxDays)
		c.Shipping = &s
	}
	if p.Supplier != nil {
		s := *p.Supplier
		s.Rating = cloneFloat(s.Rating)
		c.Supplier = &s
	}
	if p.Attribution != nil {
		c.Attribution = make(SourceAttribution, len(p.Attribution))
		for k, v := range p.Attribution {
			c.Attribution[k] = v
		}
	}
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
