package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base carries the uuid primary key and timestamps shared by most tables.
type Base struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Round2 rounds a monetary amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&ProductVariant{},
		&Offer{},
		&Cart{},
		&CartItem{},
		&SavedAddress{},
		&Order{},
		&OrderItem{},
		&Shipment{},
		&TrackingUpdate{},
		&Notification{},
		&EmailTemplate{},
		&SupportMessage{},
		&Backup{},
		&HealthCheck{},
	}
}
