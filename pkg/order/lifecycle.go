package order

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// UpdateInput holds the admin-editable fields of an order. Nil fields are left alone.
type UpdateInput struct {
	Status        *models.OrderStatus   `json:"status"`
	PaymentStatus *models.PaymentStatus `json:"paymentStatus"`
	AdminNote     *string               `json:"adminNote"`
}

// ListFilter selects a page of orders.
type ListFilter struct {
	UserID   string
	Status   models.OrderStatus
	Search   string
	Page     int
	PageSize int
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// Viewer identifies who is looking up an order. An empty UserID is a guest.
type Viewer struct {
	UserID string
}

// Update changes status, payment status or note. Repeating the current
// status is a no-op and sends nothing.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, actor string) (*models.Order, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Validation("unknown order status", map[string]string{"status": string(*in.Status)})
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.Valid() {
		return nil, apperr.Validation("unknown payment status", map[string]string{"paymentStatus": string(*in.PaymentStatus)})
	}

	var (
		order   models.Order
		changes = map[string]interface{}{}
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&order).Error
		if repository.IsNotFound(err) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}

		previous := order.Status
		statusChanged := in.Status != nil && *in.Status != order.Status
		if statusChanged && s.strictTransitions && !models.CanTransition(order.Status, *in.Status) {
			return apperr.Conflict(apperr.CodeInvalidTransition,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, *in.Status))
		}
		paymentChanged := in.PaymentStatus != nil && *in.PaymentStatus != order.PaymentStatus

		if statusChanged {
			changes["status"] = *in.Status
			order.Status = *in.Status
		}
		if paymentChanged {
			changes["payment_status"] = *in.PaymentStatus
			order.PaymentStatus = *in.PaymentStatus
		}
		if in.AdminNote != nil && *in.AdminNote != order.AdminNote {
			changes["admin_note"] = *in.AdminNote
			order.AdminNote = *in.AdminNote
		}
		if len(changes) == 0 {
			return nil
		}

		if err := tx.Model(&order).Updates(changes).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if statusChanged {
			if err := syncShipments(tx, order.ID, order.Status, s.nowFunc()); err != nil {
				return err
			}
		}

		if order.UserID == nil || order.Email == "" {
			return nil
		}
		if statusChanged {
			err := notify.Enqueue(tx, notify.KindOrderStatusChanged, order.Email, &order.ID, map[string]interface{}{
				"orderNumber":    order.OrderNumber,
				"name":           customerName(&order),
				"previousStatus": string(previous),
				"status":         string(order.Status),
			})
			if err != nil {
				return err
			}
		}
		if paymentChanged {
			err := notify.Enqueue(tx, notify.KindPaymentStatusChanged, order.Email, &order.ID, map[string]interface{}{
				"orderNumber":   order.OrderNumber,
				"name":          customerName(&order),
				"paymentStatus": string(order.PaymentStatus),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.audit("order.update", order.ID, actor, changes)
	}
	return &order, nil
}

// syncShipments carries shipped and delivered order statuses over to the
// order's shipments that have not reached them yet.
func syncShipments(tx *gorm.DB, orderID string, status models.OrderStatus, now time.Time) error {
	var err error
	switch status {
	case models.OrderShipped:
		err = tx.Model(&models.Shipment{}).
			Where("order_id = ? AND status IN ?", orderID, []models.ShipmentStatus{models.ShipmentPending, models.ShipmentInTransit}).
			Updates(map[string]interface{}{"status": models.ShipmentShipped, "shipped_at": now}).Error
	case models.OrderDelivered:
		err = tx.Model(&models.Shipment{}).
			Where("order_id = ? AND status <> ?", orderID, models.ShipmentReturned).
			Updates(map[string]interface{}{"status": models.ShipmentDelivered, "delivered_at": now}).Error
	}
	if err != nil {
		return fmt.Errorf("failed to update shipments: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// GetDetails loads an order with items, shipments and tracking history.
func (s *Service) GetDetails(ctx context.Context, id string) (*models.Order, error) {
	return s.findDetailed(ctx, s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *Service) findDetailed(ctx context.Context, q *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Shipments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Shipments.Updates", func(db *gorm.DB) *gorm.DB { return db.Order("occurred_at ASC, id ASC") }).
		First(&order).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// List returns one page of orders, newest first, and the total match count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Order, int64, error) {
	f.normalize()
	q := s.db.WithContext(ctx).Model(&models.Order{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		q = q.Where("order_number LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	var orders []models.Order
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// Remove deletes an order with its items and shipments. Paid, shipped and
// delivered orders are kept for the books.
func (s *Service) Remove(ctx context.Context, id, actor string) error {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&order).Error
		if repository.IsNotFound(err) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.PaymentStatus == models.PaymentPaid ||
			order.Status == models.OrderShipped ||
			order.Status == models.OrderDelivered {
			return apperr.ErrOrderLocked
		}

		var shipmentIDs []string
		if err := tx.Model(&models.Shipment{}).Where("order_id = ?", id).Pluck("id", &shipmentIDs).Error; err != nil {
			return fmt.Errorf("failed to load shipments: %w", err)
		}
		if len(shipmentIDs) > 0 {
			if err := tx.Where("shipment_id IN ?", shipmentIDs).Delete(&models.TrackingUpdate{}).Error; err != nil {
				return fmt.Errorf("failed to delete tracking: %w", err)
			}
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.Shipment{}).Error; err != nil {
			return fmt.Errorf("failed to delete shipments: %w", err)
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete items: %w", err)
		}
		return tx.Delete(&models.Order{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("order removed", zap.String("order_id", id), zap.String("actor", actor))
	s.audit("order.remove", id, actor, map[string]interface{}{"orderNumber": order.OrderNumber})
	return nil
}

// Lookup finds an order for a customer. Signed-in users may use the order
// number or id of their own orders. Guests need the exact id of an order
// placed without an account. Anything else is NOT_FOUND.
func (s *Service) Lookup(ctx context.Context, viewer Viewer, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.NotFound("order not found")
	}

	q := s.db.WithContext(ctx)
	if viewer.UserID != "" {
		q = q.Where("(order_number = ? OR id = ?) AND user_id = ?", ref, ref, viewer.UserID)
	} else {
		if !uuidPattern.MatchString(ref) {
			return nil, apperr.NotFound("order not found")
		}
		q = q.Where("id = ? AND user_id IS NULL", strings.ToLower(ref))
	}
	return s.findDetailed(ctx, q)
}

func customerName(o *models.Order) string {
	return strings.TrimSpace(o.ShippingAddress.FirstName + " " + o.ShippingAddress.LastName)
}
