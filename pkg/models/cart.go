package models

import (
	"github.com/shopspring/decimal"
)

type CartMode string

const (
	CartModeNormal CartMode = "normal"
	CartModeBuyNow CartMode = "buy_now"
)

func (m CartMode) Valid() bool {
	return m == CartModeNormal || m == CartModeBuyNow
}

type Cart struct {
	Base
	UserID         *string         `gorm:"type:varchar(36);uniqueIndex:idx_cart_owner" json:"userId,omitempty"`
	Mode           CartMode        `gorm:"type:varchar(16);not null;default:'normal';uniqueIndex:idx_cart_owner" json:"mode"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	DiscountCode   string          `gorm:"type:varchar(64)" json:"discountCode,omitempty"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discountAmount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"taxAmount"`
	ShippingAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"shippingAmount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"totalAmount"`
	Items          []CartItem      `gorm:"foreignKey:CartID" json:"items"`
}

func (Cart) TableName() string {
	return "carts"
}

type CartItem struct {
	Base
	CartID     string          `gorm:"type:varchar(36);not null;index" json:"cartId"`
	ProductID  string          `gorm:"type:varchar(36);not null" json:"productId"`
	VariantID  *string         `gorm:"type:varchar(36)" json:"variantId,omitempty"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalPrice"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// SameLine reports whether the item is for the given product and variant.
func (i *CartItem) SameLine(productID string, variantID *string) bool {
	if i.ProductID != productID {
		return false
	}
	if i.VariantID == nil || variantID == nil {
		return i.VariantID == nil && variantID == nil
	}
	return *i.VariantID == *variantID
}
