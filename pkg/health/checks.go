package health

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

// Database pings the SQL connection pool.
func Database(db *gorm.DB) Check {
	return Check{
		Name:     "database",
		Critical: true,
		Run: func(ctx context.Context) (string, error) {
			sqlDB, err := db.DB()
			if err != nil {
				return "", err
			}
			return "", sqlDB.PingContext(ctx)
		},
	}
}

// Ping wraps a dependency whose client exposes a Ping or Check method.
func Ping(name string, ping func(ctx context.Context) error) Check {
	return Check{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			return "", ping(ctx)
		},
	}
}

// Outbox reports the notification backlog. It fails when a pending row has
// waited longer than maxAge past its scheduled attempt.
func Outbox(db *gorm.DB, maxAge time.Duration, now func() time.Time) Check {
	return Check{
		Name: "outbox",
		Run: func(ctx context.Context) (string, error) {
			var pending, failed, stale int64
			q := db.WithContext(ctx).Model(&models.Notification{})
			if err := q.Where("status = ?", models.NotificationPending).Count(&pending).Error; err != nil {
				return "", err
			}
			q = db.WithContext(ctx).Model(&models.Notification{})
			if err := q.Where("status = ?", models.NotificationFailed).Count(&failed).Error; err != nil {
				return "", err
			}
			q = db.WithContext(ctx).Model(&models.Notification{})
			err := q.Where("status = ? AND next_attempt_at < ?", models.NotificationPending, now().Add(-maxAge)).
				Count(&stale).Error
			if err != nil {
				return "", err
			}
			detail := fmt.Sprintf("pending=%d failed=%d", pending, failed)
			if stale > 0 {
				return detail, fmt.Errorf("%d notifications overdue by more than %s", stale, maxAge)
			}
			return detail, nil
		},
	}
}
