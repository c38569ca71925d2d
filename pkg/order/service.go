// Package order turns carts into orders and runs the order lifecycle.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tolerance is how far recomputed totals may drift from the stored cart
// before checkout refuses with CART_CHANGED.
var tolerance = decimal.RequireFromString("0.01")

// ShippingMethod is one configured delivery option.
type ShippingMethod struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Carrier       string          `json:"carrier"`
	Price         decimal.Decimal `json:"price"`
	EstimatedDays int             `json:"estimatedDays"`
}

// MethodsFromConfig converts configured methods. Prices were checked by config.Validate.
func MethodsFromConfig(cfgs []config.ShippingMethodConfig) []ShippingMethod {
	out := make([]ShippingMethod, 0, len(cfgs))
	for _, c := range cfgs {
		price, err := decimal.NewFromString(c.Price)
		if err != nil {
			continue
		}
		out = append(out, ShippingMethod{
			ID:            c.ID,
			Name:          c.Name,
			Carrier:       c.Carrier,
			Price:         price,
			EstimatedDays: c.EstimatedDays,
		})
	}
	return out
}

// PlaceInput is everything needed to turn a cart into an order. It is built
// by the checkout wizard after every step has been validated.
type PlaceInput struct {
	Identity      cart.Identity
	Email         string
	Name          string
	Address       models.Address
	Shipping      ShippingMethod
	PaymentMethod models.PaymentMethod
	PaymentStatus models.PaymentStatus
}

type Service struct {
	db                *gorm.DB
	carts             *cart.Service
	auditor           repository.Auditor
	logger            *zap.Logger
	strictTransitions bool
	nowFunc           func() time.Time
	numberFunc        func(time.Time) string
}

// orderNumberAttempts bounds retries when a generated order number is taken.
const orderNumberAttempts = 5

func NewService(db *gorm.DB, carts *cart.Service, auditor repository.Auditor, shop *config.ShopConfig, logger *zap.Logger) *Service {
	if auditor == nil {
		auditor = repository.NopAuditor{}
	}
	return &Service{
		db:                db,
		carts:             carts,
		auditor:           auditor,
		logger:            logger,
		strictTransitions: shop.StrictTransitions,
		nowFunc:           time.Now,
		numberFunc:        newOrderNumber,
	}
}

// CreateFromCart places an order from the caller's cart in one transaction.
// Either the order exists with stock decremented and the cart emptied, or
// nothing changed.
func (s *Service) CreateFromCart(ctx context.Context, in PlaceInput) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.carts.LockForCheckout(tx, in.Identity)
		if err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return apperr.ErrEmptyCart
		}

		subtotal := cart.Subtotal(c.Items)
		if drifted(subtotal, c.Subtotal) {
			return apperr.ErrCartChanged
		}

		discount := decimal.Zero
		if c.DiscountCode != "" {
			discount, err = s.consumeOffer(tx, c)
			if err != nil {
				return err
			}
			if drifted(discount, c.DiscountAmount) {
				return apperr.ErrCartChanged
			}
		}

		totals := cart.ComputeTotals(subtotal, discount, s.carts.TaxRate(), in.Shipping.Price)
		if drifted(totals.Tax, c.TaxAmount) {
			return apperr.ErrCartChanged
		}

		items := make([]models.OrderItem, 0, len(c.Items))
		for _, it := range c.Items {
			snapshot, err := reserve(tx, it)
			if err != nil {
				return err
			}
			items = append(items, *snapshot)
		}

		now := s.nowFunc()
		order = &models.Order{
			UserID:          c.UserID,
			Email:           strings.TrimSpace(in.Email),
			Status:          models.OrderPending,
			PaymentStatus:   in.PaymentStatus,
			PaymentMethod:   in.PaymentMethod,
			ShippingMethod:  in.Shipping.ID,
			ShippingAddress: in.Address,
			Currency:        c.Currency,
			Subtotal:        totals.Subtotal,
			DiscountCode:    c.DiscountCode,
			DiscountAmount:  totals.Discount,
			TaxAmount:       totals.Tax,
			ShippingAmount:  totals.Shipping,
			TotalAmount:     totals.Total,
		}
		if order.PaymentStatus == "" {
			order.PaymentStatus = models.PaymentPending
		}
		if err := s.insertOrder(tx, order, now); err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}
		order.Items = items

		shipment := &models.Shipment{
			OrderID: order.ID,
			Carrier: in.Shipping.Carrier,
			Method:  in.Shipping.ID,
			Status:  models.ShipmentPending,
		}
		if in.Shipping.EstimatedDays > 0 {
			eta := now.AddDate(0, 0, in.Shipping.EstimatedDays)
			shipment.EstimatedDelivery = &eta
		}
		if err := tx.Create(shipment).Error; err != nil {
			return fmt.Errorf("failed to create shipment: %w", err)
		}
		order.Shipments = []models.Shipment{*shipment}

		if order.Email != "" {
			if err := notify.Enqueue(tx, notify.KindOrderPlaced, order.Email, &order.ID, placedPayload(order, in.Name)); err != nil {
				return err
			}
		}

		if order.UserID != nil {
			if err := saveAddress(tx, *order.UserID, in.Address); err != nil {
				return err
			}
		}

		c.DiscountCode = ""
		c.ShippingAmount = decimal.Zero
		if err := cart.ClearItems(tx, c); err != nil {
			return err
		}
		return s.carts.Recalculate(tx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	s.audit("order.create", order.ID, userActor(order.UserID), map[string]interface{}{
		"orderNumber": order.OrderNumber,
		"total":       order.TotalAmount.StringFixed(2),
	})
	return order, nil
}

// consumeOffer re-evaluates the cart's code and counts one use of it. The
// usage limit is enforced by the update itself so two checkouts cannot both
// take the last use.
func (s *Service) consumeOffer(tx *gorm.DB, c *models.Cart) (decimal.Decimal, error) {
	var offer models.Offer
	err := tx.Where("code = ?", c.DiscountCode).First(&offer).Error
	if repository.IsNotFound(err) {
		return decimal.Zero, apperr.ErrInvalidCode
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load offer: %w", err)
	}

	amount, err := cart.EvaluateOffer(&offer, c.Items, s.nowFunc())
	if err != nil {
		return decimal.Zero, err
	}

	res := tx.Model(&models.Offer{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", offer.ID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to consume offer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, apperr.ErrInvalidCode
	}
	return amount, nil
}

// reserve decrements stock for one cart line and returns its order snapshot.
func reserve(tx *gorm.DB, it models.CartItem) (*models.OrderItem, error) {
	var product models.Product
	err := tx.Where("id = ? AND active = ?", it.ProductID, true).First(&product).Error
	if repository.IsNotFound(err) {
		return nil, apperr.ErrStockConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	snapshot := &models.OrderItem{
		ProductID:   product.ID,
		VariantID:   it.VariantID,
		ProductName: product.Name,
		SKU:         product.SKU,
		UnitPrice:   it.UnitPrice,
		Quantity:    it.Quantity,
		TotalPrice:  cart.LineTotal(it.UnitPrice, it.Quantity),
	}

	var res *gorm.DB
	if it.VariantID != nil {
		var variant models.ProductVariant
		err := tx.Where("id = ? AND product_id = ?", *it.VariantID, product.ID).First(&variant).Error
		if repository.IsNotFound(err) {
			return nil, apperr.ErrStockConflict
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load variant: %w", err)
		}
		snapshot.VariantName = variant.Name
		if variant.SKU != "" {
			snapshot.SKU = variant.SKU
		}
		res = tx.Model(&models.ProductVariant{}).
			Where("id = ? AND stock >= ?", variant.ID, it.Quantity).
			Update("stock", gorm.Expr("stock - ?", it.Quantity))
	} else {
		res = tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", product.ID, it.Quantity).
			Update("stock", gorm.Expr("stock - ?", it.Quantity))
	}
	if res.Error != nil {
		return nil, fmt.Errorf("failed to decrement stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrStockConflict
	}
	return snapshot, nil
}

func saveAddress(tx *gorm.DB, userID string, addr models.Address) error {
	saved := &models.SavedAddress{UserID: userID, Address: addr}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(addressColumns()),
	}).Create(saved).Error
	if err != nil {
		return fmt.Errorf("failed to save address: %w", err)
	}
	return nil
}

func addressColumns() []string {
	return []string{
		"first_name", "last_name", "line1", "line2", "city",
		"state", "postal_code", "country", "phone", "updated_at",
	}
}

func placedPayload(o *models.Order, name string) map[string]interface{} {
	if name == "" {
		name = customerName(o)
	}
	lines := make([]map[string]interface{}, 0, len(o.Items))
	for _, it := range o.Items {
		label := it.ProductName
		if it.VariantName != "" {
			label += " (" + it.VariantName + ")"
		}
		lines = append(lines, map[string]interface{}{
			"name":     label,
			"quantity": it.Quantity,
			"total":    it.TotalPrice.StringFixed(2),
		})
	}
	return map[string]interface{}{
		"orderNumber":   o.OrderNumber,
		"name":          name,
		"items":         lines,
		"subtotal":      o.Subtotal.StringFixed(2),
		"discount":      o.DiscountAmount.StringFixed(2),
		"tax":           o.TaxAmount.StringFixed(2),
		"shipping":      o.ShippingAmount.StringFixed(2),
		"total":         o.TotalAmount.StringFixed(2),
		"currency":      o.Currency,
		"paymentMethod": string(o.PaymentMethod),
	}
}

// insertOrder assigns a fresh order number and creates the row, drawing a new
// number when the unique index rejects one. Each attempt runs in a savepoint
// so a rejected insert does not abort the checkout transaction.
func (s *Service) insertOrder(tx *gorm.DB, order *models.Order, now time.Time) error {
	var err error
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order.OrderNumber = s.numberFunc(now)
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Omit(clause.Associations).Create(order).Error
		})
		if !repository.IsDuplicate(err) {
			break
		}
		s.logger.Warn("order number taken, drawing another",
			zap.String("orderNumber", order.OrderNumber), zap.Int("attempt", attempt))
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func drifted(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(tolerance)
}

// newOrderNumber returns ORD-{yyyymmdd}-{6 upper hex}.
func newOrderNumber(now time.Time) string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		b = []byte{byte(now.UnixNano()), byte(now.UnixNano() >> 8), byte(now.UnixNano() >> 16)}
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}

func userActor(userID *string) string {
	if userID == nil {
		return "guest"
	}
	return *userID
}

// audit writes an audit entry in the background. Failures are only logged.
func (s *Service) audit(action, orderID, actor string, data map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.auditor.Record(ctx, &repository.AuditEntry{
			Service:  "order",
			Action:   action,
			EntityID: orderID,
			Actor:    actor,
			Data:     data,
		})
		if err != nil {
			s.logger.Warn("failed to write audit log",
				zap.String("action", action),
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}()
}

// AuditTrail returns the newest audit entries of an order.
func (s *Service) AuditTrail(ctx context.Context, orderID string, limit int64) ([]*repository.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.auditor.Trail(ctx, orderID, limit)
}
