package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShipmentInput struct {
	Carrier           string     `json:"carrier" validate:"required,max=64"`
	Method            string     `json:"method" validate:"max=64"`
	TrackingNumber    string     `json:"trackingNumber" validate:"max=128"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

// ShipmentPatch changes the given shipment fields; nil fields stay as they are.
type ShipmentPatch struct {
	Carrier           *string                `json:"carrier" validate:"omitempty,max=64"`
	TrackingNumber    *string                `json:"trackingNumber" validate:"omitempty,max=128"`
	Status            *models.ShipmentStatus `json:"status"`
	EstimatedDelivery *time.Time             `json:"estimatedDelivery"`
}

type TrackingInput struct {
	Status      models.ShipmentStatus `json:"status" validate:"required"`
	Description string                `json:"description" validate:"required,max=500"`
	Location    string                `json:"location" validate:"max=200"`
	OccurredAt  *time.Time            `json:"occurredAt"`
}

// AddShipment adds another shipment to an order, e.g. for a split delivery.
func (s *Service) AddShipment(ctx context.Context, orderID string, in ShipmentInput) (*models.Shipment, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	shipment := &models.Shipment{
		OrderID:           orderID,
		Carrier:           strings.TrimSpace(in.Carrier),
		Method:            in.Method,
		TrackingNumber:    strings.TrimSpace(in.TrackingNumber),
		Status:            models.ShipmentPending,
		EstimatedDelivery: in.EstimatedDelivery,
	}
	if err := s.db.WithContext(ctx).Create(shipment).Error; err != nil {
		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}
	s.audit("shipment.create", orderID, "admin", map[string]interface{}{"shipmentId": shipment.ID})
	return shipment, nil
}

func (s *Service) UpdateShipment(ctx context.Context, shipmentID string, patch ShipmentPatch) (*models.Shipment, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Validation("unknown shipment status", map[string]string{"status": string(*patch.Status)})
	}

	var shipment models.Shipment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadShipment(tx, shipmentID, &shipment); err != nil {
			return err
		}
		changes := map[string]interface{}{}
		if patch.Carrier != nil {
			changes["carrier"] = strings.TrimSpace(*patch.Carrier)
		}
		if patch.TrackingNumber != nil {
			changes["tracking_number"] = strings.TrimSpace(*patch.TrackingNumber)
		}
		if patch.EstimatedDelivery != nil {
			changes["estimated_delivery"] = *patch.EstimatedDelivery
		}
		if patch.Status != nil && *patch.Status != shipment.Status {
			for k, v := range statusTimestamps(&shipment, *patch.Status, s.nowFunc()) {
				changes[k] = v
			}
			changes["status"] = *patch.Status
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&shipment).Updates(changes).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}
		return loadShipment(tx, shipmentID, &shipment)
	})
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// AppendTracking records a tracking event and moves the shipment to its
// status. Existing events are never changed.
func (s *Service) AppendTracking(ctx context.Context, shipmentID string, in TrackingInput) (*models.TrackingUpdate, error) {
	if !in.Status.Valid() {
		return nil, apperr.Validation("unknown shipment status", map[string]string{"status": string(in.Status)})
	}
	now := s.nowFunc()
	occurred := now
	if in.OccurredAt != nil {
		occurred = *in.OccurredAt
	}

	update := &models.TrackingUpdate{
		ID:          uuid.NewString(),
		ShipmentID:  shipmentID,
		Status:      in.Status,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		OccurredAt:  occurred,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shipment models.Shipment
		if err := loadShipment(tx, shipmentID, &shipment); err != nil {
			return err
		}
		if err := tx.Create(update).Error; err != nil {
			return fmt.Errorf("failed to append tracking: %w", err)
		}
		if shipment.Status == in.Status {
			return nil
		}
		changes := statusTimestamps(&shipment, in.Status, occurred)
		changes["status"] = in.Status
		if err := tx.Model(&shipment).Updates(changes).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// Tracking returns the shipments of an order visible to viewer.
func (s *Service) Tracking(ctx context.Context, viewer Viewer, ref string) ([]models.Shipment, error) {
	order, err := s.Lookup(ctx, viewer, ref)
	if err != nil {
		return nil, err
	}
	return order.Shipments, nil
}

func loadShipment(tx *gorm.DB, id string, out *models.Shipment) error {
	err := tx.Where("id = ?", id).First(out).Error
	if repository.IsNotFound(err) {
		return apperr.NotFound("shipment not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load shipment: %w", err)
	}
	return nil
}

// statusTimestamps fills shipped_at and delivered_at the first time a
// shipment reaches those states.
func statusTimestamps(sh *models.Shipment, status models.ShipmentStatus, at time.Time) map[string]interface{} {
	changes := map[string]interface{}{}
	switch status {
	case models.ShipmentShipped, models.ShipmentInTransit:
		if sh.ShippedAt == nil {
			changes["shipped_at"] = at
		}
	case models.ShipmentDelivered:
		if sh.ShippedAt == nil {
			changes["shipped_at"] = at
		}
		if sh.DeliveredAt == nil {
			changes["delivered_at"] = at
		}
	}
	return changes
}
