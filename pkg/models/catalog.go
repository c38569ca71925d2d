package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	Base
	Name        string           `gorm:"type:varchar(200);not null" json:"name"`
	Slug        string           `gorm:"type:varchar(200);uniqueIndex;not null" json:"slug"`
	SKU         string           `gorm:"type:varchar(64);index" json:"sku"`
	Description string           `gorm:"type:text" json:"description"`
	Price       decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"price"`
	Stock       int              `gorm:"not null;default:0" json:"stock"`
	Active      bool             `gorm:"not null" json:"active"`
	ImageURL    string           `gorm:"type:varchar(500)" json:"imageUrl"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

type ProductVariant struct {
	Base
	ProductID string              `gorm:"type:varchar(36);not null;index" json:"productId"`
	Name      string              `gorm:"type:varchar(200);not null" json:"name"`
	SKU       string              `gorm:"type:varchar(64);index" json:"sku"`
	Price     decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"price"`
	Stock     int                 `gorm:"not null;default:0" json:"stock"`
	ImageURL  string              `gorm:"type:varchar(500)" json:"imageUrl"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}

// UnitPrice is the variant override when set, else the product price.
func (v *ProductVariant) UnitPrice(p *Product) decimal.Decimal {
	if v != nil && v.Price.Valid {
		return v.Price.Decimal
	}
	return p.Price
}

type OfferType string

const (
	OfferPercent OfferType = "percent"
	OfferFixed   OfferType = "fixed"
)

type OfferScope string

const (
	ScopeAll     OfferScope = "all"
	ScopeProduct OfferScope = "product"
)

// Offer is a discount code with a validity window and optional usage cap.
type Offer struct {
	Base
	Code        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type        OfferType       `gorm:"type:varchar(16);not null" json:"type"`
	Value       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"value"`
	Scope       OfferScope      `gorm:"type:varchar(16);not null;default:'all'" json:"scope"`
	ProductID   *string         `gorm:"type:varchar(36)" json:"productId,omitempty"`
	MinSubtotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"minSubtotal"`
	StartsAt    *time.Time      `json:"startsAt,omitempty"`
	EndsAt      *time.Time      `json:"endsAt,omitempty"`
	UsageLimit  *int            `json:"usageLimit,omitempty"`
	UsedCount   int             `gorm:"not null;default:0" json:"usedCount"`
	Active      bool            `gorm:"not null" json:"active"`
}

func (Offer) TableName() string {
	return "offers"
}
