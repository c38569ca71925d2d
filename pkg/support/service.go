// Package support stores messages sent through the contact form.
package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MessageInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=200"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=5000"`
}

type Filter struct {
	Status   models.SupportStatus
	Page     int
	PageSize int
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Create stores a new message. userID is set when the sender is signed in.
func (s *Service) Create(ctx context.Context, in MessageInput, userID *string) (*models.SupportMessage, error) {
	msg := &models.SupportMessage{
		UserID:  userID,
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Subject: strings.TrimSpace(in.Subject),
		Body:    strings.TrimSpace(in.Body),
		Status:  models.SupportNew,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to save support message: %w", err)
	}
	s.logger.Info("support message received", zap.String("id", msg.ID), zap.String("subject", msg.Subject))
	return msg, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.SupportMessage, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	q := s.db.WithContext(ctx).Model(&models.SupportMessage{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count support messages: %w", err)
	}
	var out []models.SupportMessage
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list support messages: %w", err)
	}
	return out, total, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status models.SupportStatus) (*models.SupportMessage, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown status", map[string]string{"status": "oneof"})
	}
	var msg models.SupportMessage
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("support message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load support message: %w", err)
	}
	if msg.Status == status {
		return &msg, nil
	}
	if err := s.db.WithContext(ctx).Model(&msg).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update support message: %w", err)
	}
	msg.Status = status
	return &msg, nil
}
