package backup

import (
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const snapshotVersion = 1

// Snapshot is the content of a backup file. Backups and health checks are
// not part of it.
type Snapshot struct {
	Version         int                     `json:"version"`
	CreatedAt       time.Time               `json:"createdAt"`
	Products        []models.Product        `json:"products"`
	ProductVariants []models.ProductVariant `json:"productVariants"`
	Offers          []models.Offer          `json:"offers"`
	Carts           []models.Cart           `json:"carts"`
	CartItems       []models.CartItem       `json:"cartItems"`
	SavedAddresses  []models.SavedAddress   `json:"savedAddresses"`
	Orders          []models.Order          `json:"orders"`
	OrderItems      []models.OrderItem      `json:"orderItems"`
	Shipments       []models.Shipment       `json:"shipments"`
	TrackingUpdates []models.TrackingUpdate `json:"trackingUpdates"`
	Notifications   []models.Notification   `json:"notifications"`
	EmailTemplates  []models.EmailTemplate  `json:"emailTemplates"`
	SupportMessages []models.SupportMessage `json:"supportMessages"`
}

type table struct {
	name  string
	dump  func(tx *gorm.DB, s *Snapshot) error
	load  func(tx *gorm.DB, s *Snapshot) error
	clear func(tx *gorm.DB) error
	count func(s *Snapshot) int
}

func newTable[T any](name string, rows func(s *Snapshot) *[]T) table {
	return table{
		name: name,
		dump: func(tx *gorm.DB, s *Snapshot) error {
			out := rows(s)
			*out = []T{}
			return tx.Find(out).Error
		},
		load: func(tx *gorm.DB, s *Snapshot) error {
			in := *rows(s)
			if len(in) == 0 {
				return nil
			}
			return tx.Omit(clause.Associations).CreateInBatches(in, 200).Error
		},
		clear: func(tx *gorm.DB) error {
			var zero T
			return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&zero).Error
		},
		count: func(s *Snapshot) int { return len(*rows(s)) },
	}
}

// tables lists parents before children; clearing runs in reverse.
var tables = []table{
	newTable("products", func(s *Snapshot) *[]models.Product { return &s.Products }),
	newTable("product_variants", func(s *Snapshot) *[]models.ProductVariant { return &s.ProductVariants }),
	newTable("offers", func(s *Snapshot) *[]models.Offer { return &s.Offers }),
	newTable("carts", func(s *Snapshot) *[]models.Cart { return &s.Carts }),
	newTable("cart_items", func(s *Snapshot) *[]models.CartItem { return &s.CartItems }),
	newTable("saved_addresses", func(s *Snapshot) *[]models.SavedAddress { return &s.SavedAddresses }),
	newTable("orders", func(s *Snapshot) *[]models.Order { return &s.Orders }),
	newTable("order_items", func(s *Snapshot) *[]models.OrderItem { return &s.OrderItems }),
	newTable("shipments", func(s *Snapshot) *[]models.Shipment { return &s.Shipments }),
	newTable("tracking_updates", func(s *Snapshot) *[]models.TrackingUpdate { return &s.TrackingUpdates }),
	newTable("notifications", func(s *Snapshot) *[]models.Notification { return &s.Notifications }),
	newTable("email_templates", func(s *Snapshot) *[]models.EmailTemplate { return &s.EmailTemplates }),
	newTable("support_messages", func(s *Snapshot) *[]models.SupportMessage { return &s.SupportMessages }),
}

func takeSnapshot(tx *gorm.DB, now time.Time) (*Snapshot, error) {
	s := &Snapshot{Version: snapshotVersion, CreatedAt: now}
	for _, t := range tables {
		if err := t.dump(tx, s); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.name, err)
		}
	}
	return s, nil
}

// replaceAll swaps every table's rows for the snapshot's. Run it inside a
// transaction.
func replaceAll(tx *gorm.DB, s *Snapshot) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if err := tables[i].clear(tx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", tables[i].name, err)
		}
	}
	for _, t := range tables {
		if err := t.load(tx, s); err != nil {
			return fmt.Errorf("failed to restore %s: %w", t.name, err)
		}
	}
	return nil
}

// Counts reports the number of rows per table.
func (s *Snapshot) Counts() map[string]int {
	out := make(map[string]int, len(tables))
	for _, t := range tables {
		out[t.name] = t.count(s)
	}
	return out
}
