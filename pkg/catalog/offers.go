package catalog

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) CreateOffer(ctx context.Context, in OfferInput) (*models.Offer, error) {
	o := &models.Offer{}
	if err := applyOffer(o, in); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, s.writeError("offer", err)
	}
	return o, nil
}

func (s *Service) ListOffers(ctx context.Context) ([]models.Offer, error) {
	var out []models.Offer
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return out, nil
}

func (s *Service) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var o models.Offer
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("offer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	return &o, nil
}

// UpdateOffer replaces the offer definition. Its usage count is kept.
func (s *Service) UpdateOffer(ctx context.Context, id string, in OfferInput) (*models.Offer, error) {
	o, err := s.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyOffer(o, in); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(o).Select(
		"code", "type", "value", "scope", "product_id", "min_subtotal",
		"starts_at", "ends_at", "usage_limit", "active", "updated_at",
	).Updates(o).Error
	if err != nil {
		return nil, s.writeError("offer", err)
	}
	return o, nil
}

func (s *Service) DeleteOffer(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Offer{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete offer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("offer not found")
	}
	return nil
}

func applyOffer(o *models.Offer, in OfferInput) error {
	fields := map[string]string{}
	code := cart.NormalizeCode(in.Code)
	if code == "" {
		fields["code"] = "required"
	}
	if !in.Value.IsPositive() {
		fields["value"] = "gt=0"
	}
	if in.Type == models.OfferPercent && in.Value.GreaterThan(hundred) {
		fields["value"] = "lte=100"
	}
	if in.MinSubtotal.IsNegative() {
		fields["minSubtotal"] = "min=0"
	}
	scope := in.Scope
	if scope == "" {
		scope = models.ScopeAll
	}
	if scope == models.ScopeProduct && (in.ProductID == nil || *in.ProductID == "") {
		fields["productId"] = "required"
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		fields["endsAt"] = "gtfield=startsAt"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid offer", fields)
	}

	o.Code = code
	o.Type = in.Type
	o.Value = models.Round2(in.Value)
	o.Scope = scope
	o.ProductID = in.ProductID
	if scope == models.ScopeAll {
		o.ProductID = nil
	}
	o.MinSubtotal = models.Round2(in.MinSubtotal)
	o.StartsAt = in.StartsAt
	o.EndsAt = in.EndsAt
	o.UsageLimit = in.UsageLimit
	o.Active = in.Active == nil || *in.Active
	return nil
}
