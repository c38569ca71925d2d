package models

import "time"

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSending NotificationStatus = "sending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is an outbox row written in the same transaction as the
// change it announces and delivered later by the drainer.
type Notification struct {
	Base
	Kind          string             `gorm:"type:varchar(64);not null" json:"kind"`
	Recipient     string             `gorm:"type:varchar(200);not null" json:"recipient"`
	OrderID       *string            `gorm:"type:varchar(36);index" json:"orderId,omitempty"`
	Payload       string             `gorm:"type:text" json:"payload"`
	Subject       string             `gorm:"type:varchar(300)" json:"subject,omitempty"`
	Body          string             `gorm:"type:text" json:"body,omitempty"`
	Status        NotificationStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Attempts      int                `gorm:"not null;default:0" json:"attempts"`
	LastError     string             `gorm:"type:text" json:"lastError,omitempty"`
	NextAttemptAt time.Time          `gorm:"index" json:"nextAttemptAt"`
	SentAt        *time.Time         `json:"sentAt,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

type EmailTemplate struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Subject   string    `gorm:"type:varchar(300);not null" json:"subject"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}
