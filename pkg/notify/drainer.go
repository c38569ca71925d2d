package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// staleAfter is how long a row may stay claimed before a later drain
// returns it to the queue.
const staleAfter = 10 * time.Minute

// Result counts what one drain pass did.
type Result struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

type Drainer struct {
	db          *gorm.DB
	templates   *Templates
	sender      Sender
	logger      *zap.Logger
	batchSize   int
	maxAttempts int
	nowFunc     func() time.Time
}

func NewDrainer(db *gorm.DB, sender Sender, cfg *config.NotifyConfig, logger *zap.Logger) *Drainer {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Drainer{
		db:          db,
		templates:   NewTemplates(db),
		sender:      sender,
		logger:      logger,
		batchSize:   batch,
		maxAttempts: attempts,
		nowFunc:     time.Now,
	}
}

// Drain delivers up to one batch of due notifications.
func (d *Drainer) Drain(ctx context.Context) (Result, error) {
	var res Result
	now := d.nowFunc()

	err := d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("status = ? AND updated_at < ?", models.NotificationSending, now.Add(-staleAfter)).
		Updates(map[string]interface{}{"status": models.NotificationPending, "updated_at": now}).Error
	if err != nil {
		return res, fmt.Errorf("failed to release stale notifications: %w", err)
	}

	var due []models.Notification
	err = d.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.NotificationPending, now).
		Order("created_at ASC").
		Limit(d.batchSize).
		Find(&due).Error
	if err != nil {
		return res, fmt.Errorf("failed to load due notifications: %w", err)
	}

	for i := range due {
		n := &due[i]
		claimed, err := d.claim(ctx, n)
		if err != nil {
			return res, err
		}
		if !claimed {
			continue
		}
		res.Claimed++

		sendErr := d.deliver(ctx, n)
		switch {
		case sendErr == nil:
			res.Sent++
		case n.Attempts >= d.maxAttempts:
			res.Failed++
		default:
			res.Retried++
		}
		if err := d.finish(ctx, n, sendErr); err != nil {
			return res, err
		}
	}
	return res, nil
}

// claim moves a row from pending to sending. Another drainer that got there
// first makes the update match nothing.
func (d *Drainer) claim(ctx context.Context, n *models.Notification) (bool, error) {
	tx := d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status = ?", n.ID, models.NotificationPending).
		Updates(map[string]interface{}{
			"status":     models.NotificationSending,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": d.nowFunc(),
		})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to claim notification: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}
	n.Attempts++
	n.Status = models.NotificationSending
	return true, nil
}

func (d *Drainer) deliver(ctx context.Context, n *models.Notification) error {
	data := map[string]interface{}{}
	if n.Payload != "" {
		if err := json.Unmarshal([]byte(n.Payload), &data); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	subject, body, err := d.templates.Render(ctx, n.Kind, data)
	if err != nil {
		return err
	}
	n.Subject = subject
	n.Body = body

	return d.sender.Send(ctx, Message{
		ID:      n.ID,
		Kind:    n.Kind,
		To:      n.Recipient,
		Subject: subject,
		Body:    body,
	})
}

func (d *Drainer) finish(ctx context.Context, n *models.Notification, sendErr error) error {
	now := d.nowFunc()
	updates := map[string]interface{}{
		"subject":    n.Subject,
		"body":       n.Body,
		"updated_at": now,
	}
	switch {
	case sendErr == nil:
		updates["status"] = models.NotificationSent
		updates["sent_at"] = now
		updates["last_error"] = ""
	case n.Attempts >= d.maxAttempts:
		updates["status"] = models.NotificationFailed
		updates["last_error"] = sendErr.Error()
		d.logger.Error("notification failed permanently",
			zap.String("id", n.ID),
			zap.String("kind", n.Kind),
			zap.Int("attempts", n.Attempts),
			zap.Error(sendErr))
	default:
		updates["status"] = models.NotificationPending
		updates["last_error"] = sendErr.Error()
		updates["next_attempt_at"] = now.Add(Backoff(n.Attempts))
		d.logger.Warn("notification send failed, will retry",
			zap.String("id", n.ID),
			zap.String("kind", n.Kind),
			zap.Int("attempts", n.Attempts),
			zap.Error(sendErr))
	}

	err := d.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", n.ID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// Backoff is the delay before retry number attempt+1: one minute doubled per
// attempt, at most an hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Minute
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}

// List returns the email log newest first, optionally filtered by status.
func List(ctx context.Context, db *gorm.DB, status string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}
