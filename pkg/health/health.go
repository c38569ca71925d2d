// Package health probes the shop's dependencies and keeps a history of the
// results.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Check is one named probe. A failing critical check marks the whole report
// down; any other failure only degrades it.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) (string, error)
}

type Result struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

type Report struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Checks    []Result  `json:"checks"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Service struct {
	db       *gorm.DB
	logger   *zap.Logger
	timeout  time.Duration
	nowFunc  func() time.Time
	keepLast int
	maxAge   time.Duration

	mu        sync.Mutex
	checks    []Check
	listeners []func(status string)
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{
		db:      db,
		logger:  logger,
		timeout: 5 * time.Second,
		nowFunc: time.Now,
	}
}

// SetRetention bounds the stored history to the newest keepLast reports and
// drops reports older than maxAge. Zero disables either limit.
func (s *Service) SetRetention(keepLast int, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepLast = keepLast
	s.maxAge = maxAge
}

func (s *Service) Register(c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, c)
}

// OnStatus registers fn to be called with the overall status after every run.
func (s *Service) OnStatus(fn func(status string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Run executes every check, stores the report and returns it.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	checks := append([]Check(nil), s.checks...)
	listeners := append([]func(string){}, s.listeners...)
	keepLast, maxAge := s.keepLast, s.maxAge
	s.mu.Unlock()

	report := &Report{
		ID:        uuid.NewString(),
		Status:    StatusOK,
		Checks:    make([]Result, len(checks)),
		CheckedAt: s.nowFunc().UTC(),
	}

	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			report.Checks[i] = s.runOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	for i, r := range report.Checks {
		if r.Status == StatusOK {
			continue
		}
		if checks[i].Critical {
			report.Status = StatusDown
		} else if report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}

	if err := s.store(ctx, report); err != nil {
		s.logger.Warn("failed to store health check", zap.Error(err))
	} else if err := s.prune(ctx, keepLast, maxAge); err != nil {
		s.logger.Warn("failed to prune health checks", zap.Error(err))
	}
	if report.Status != StatusOK {
		s.logger.Warn("health check not ok", zap.String("status", report.Status))
	}
	for _, fn := range listeners {
		fn(report.Status)
	}
	return report, nil
}

// Latest returns the newest stored report, running one when none exists.
func (s *Service) Latest(ctx context.Context) (*Report, error) {
	var row models.HealthCheck
	err := s.db.WithContext(ctx).Order("checked_at DESC").Limit(1).Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load health check: %w", err)
	}
	if row.ID == "" {
		return s.Run(ctx)
	}
	var report Report
	if err := json.Unmarshal([]byte(row.Details), &report); err != nil {
		return nil, fmt.Errorf("failed to decode health check: %w", err)
	}
	report.ID = row.ID
	report.Status = row.Status
	report.CheckedAt = row.CheckedAt
	return &report, nil
}

func (s *Service) runOne(ctx context.Context, c Check) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	detail, err := c.Run(ctx)
	r := Result{
		Name:      c.Name,
		Status:    StatusOK,
		Detail:    detail,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		r.Status = StatusDown
		r.Error = err.Error()
	}
	return r
}

func (s *Service) store(ctx context.Context, report *Report) error {
	details, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&models.HealthCheck{
		ID:        report.ID,
		Status:    report.Status,
		Details:   string(details),
		CheckedAt: report.CheckedAt,
	}).Error
}

func (s *Service) prune(ctx context.Context, keepLast int, maxAge time.Duration) error {
	db := s.db.WithContext(ctx)
	if maxAge > 0 {
		cutoff := s.nowFunc().UTC().Add(-maxAge)
		if err := db.Where("checked_at < ?", cutoff).Delete(&models.HealthCheck{}).Error; err != nil {
			return err
		}
	}
	if keepLast <= 0 {
		return nil
	}

	var oldestKept []time.Time
	err := db.Model(&models.HealthCheck{}).
		Order("checked_at DESC").
		Offset(keepLast-1).
		Limit(1).
		Pluck("checked_at", &oldestKept).Error
	if err != nil || len(oldestKept) == 0 {
		return err
	}
	res := db.Where("checked_at < ?", oldestKept[0]).Delete(&models.HealthCheck{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Debug("pruned health checks", zap.Int64("rows", res.RowsAffected))
	}
	return nil
}
