// Package notify delivers customer emails through a transactional outbox.
//
// Services call Enqueue inside the transaction that makes the change being
// announced. A Drainer later claims pending rows, renders them with the
// stored or built-in templates and hands them to a Sender.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

const (
	KindOrderPlaced          = "order_placed"
	KindOrderStatusChanged   = "order_status_changed"
	KindPaymentStatusChanged = "payment_status_changed"
)

// Enqueue writes a pending notification using tx. The row becomes visible to
// the drainer only if tx commits.
func Enqueue(tx *gorm.DB, kind, recipient string, orderID *string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}
	n := &models.Notification{
		Kind:          kind,
		Recipient:     recipient,
		OrderID:       orderID,
		Payload:       string(payload),
		Status:        models.NotificationPending,
		NextAttemptAt: time.Now(),
	}
	if err := tx.Create(n).Error; err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}
