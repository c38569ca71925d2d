package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions except a repeat of themselves.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// rank orders the common path; cancelled is off the path.
func (s OrderStatus) rank() int {
	switch s {
	case OrderPending:
		return 0
	case OrderProcessing:
		return 1
	case OrderShipped:
		return 2
	case OrderDelivered:
		return 3
	}
	return -1
}

// CanTransition reports whether from -> to follows the lifecycle:
// forward along pending→processing→shipped→delivered, or to cancelled
// from any non-terminal status. Repeating the current status is allowed.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == OrderCancelled {
		return true
	}
	return to.rank() > from.rank()
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCard           PaymentMethod = "card"
)

type Order struct {
	Base
	OrderNumber     string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"orderNumber"`
	UserID          *string         `gorm:"type:varchar(36);index" json:"userId,omitempty"`
	Email           string          `gorm:"type:varchar(200)" json:"email"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"paymentStatus"`
	PaymentMethod   PaymentMethod   `gorm:"type:varchar(32);not null" json:"paymentMethod"`
	ShippingMethod  string          `gorm:"type:varchar(64);not null" json:"shippingMethod"`
	ShippingAddress Address         `gorm:"embedded;embeddedPrefix:ship_" json:"shippingAddress"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DiscountCode    string          `gorm:"type:varchar(64)" json:"discountCode,omitempty"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discountAmount"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"taxAmount"`
	ShippingAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"shippingAmount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalAmount"`
	AdminNote       string          `gorm:"type:text" json:"adminNote,omitempty"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Shipments       []Shipment      `gorm:"foreignKey:OrderID" json:"shipments,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is a purchase-time snapshot and does not reference live catalog rows.
type OrderItem struct {
	Base
	OrderID     string          `gorm:"type:varchar(36);not null;index" json:"orderId"`
	ProductID   string          `gorm:"type:varchar(36);not null" json:"productId"`
	VariantID   *string         `gorm:"type:varchar(36)" json:"variantId,omitempty"`
	ProductName string          `gorm:"type:varchar(200);not null" json:"productName"`
	SKU         string          `gorm:"type:varchar(64)" json:"sku"`
	VariantName string          `gorm:"type:varchar(200)" json:"variantName,omitempty"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"totalPrice"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentShipped   ShipmentStatus = "shipped"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentReturned  ShipmentStatus = "returned"
)

func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentInTransit, ShipmentShipped, ShipmentDelivered, ShipmentReturned:
		return true
	}
	return false
}

type Shipment struct {
	Base
	OrderID           string           `gorm:"type:varchar(36);not null;index" json:"orderId"`
	Carrier           string           `gorm:"type:varchar(64)" json:"carrier"`
	Method            string           `gorm:"type:varchar(64)" json:"method"`
	TrackingNumber    string           `gorm:"type:varchar(128)" json:"trackingNumber,omitempty"`
	Status            ShipmentStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ShippedAt         *time.Time       `json:"shippedAt,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time       `json:"deliveredAt,omitempty"`
	Updates           []TrackingUpdate `gorm:"foreignKey:ShipmentID" json:"updates,omitempty"`
}

func (Shipment) TableName() string {
	return "shipments"
}

// TrackingUpdate rows are only ever inserted.
type TrackingUpdate struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ShipmentID  string         `gorm:"type:varchar(36);not null;index" json:"shipmentId"`
	Status      ShipmentStatus `gorm:"type:varchar(20);not null" json:"status"`
	Description string         `gorm:"type:varchar(500)" json:"description"`
	Location    string         `gorm:"type:varchar(200)" json:"location,omitempty"`
	OccurredAt  time.Time      `gorm:"not null;index" json:"occurredAt"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (TrackingUpdate) TableName() string {
	return "tracking_updates"
}
