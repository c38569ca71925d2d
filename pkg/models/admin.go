package models

import "time"

type SupportStatus string

const (
	SupportNew        SupportStatus = "new"
	SupportInProgress SupportStatus = "in_progress"
	SupportResolved   SupportStatus = "resolved"
	SupportClosed     SupportStatus = "closed"
)

func (s SupportStatus) Valid() bool {
	switch s {
	case SupportNew, SupportInProgress, SupportResolved, SupportClosed:
		return true
	}
	return false
}

type SupportMessage struct {
	Base
	UserID  *string       `gorm:"type:varchar(36);index" json:"userId,omitempty"`
	Name    string        `gorm:"type:varchar(100);not null" json:"name"`
	Email   string        `gorm:"type:varchar(200);not null" json:"email"`
	Subject string        `gorm:"type:varchar(200);not null" json:"subject"`
	Body    string        `gorm:"type:text;not null" json:"body"`
	Status  SupportStatus `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
}

func (SupportMessage) TableName() string {
	return "support_messages"
}

type Backup struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Filename  string    `gorm:"type:varchar(255);not null" json:"filename"`
	SizeBytes int64     `json:"sizeBytes"`
	Note      string    `gorm:"type:varchar(255)" json:"note,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (Backup) TableName() string {
	return "backups"
}

type HealthCheck struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Status    string    `gorm:"type:varchar(16);not null" json:"status"`
	Details   string    `gorm:"type:text" json:"-"`
	CheckedAt time.Time `gorm:"index" json:"checkedAt"`
}

func (HealthCheck) TableName() string {
	return "health_checks"
}
