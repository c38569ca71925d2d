// Package catalog manages products, their variants and discount offers.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

type ProductInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Slug        string          `json:"slug" validate:"max=200"`
	SKU         string          `json:"sku" validate:"max=64"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"min=0"`
	Active      *bool           `json:"active"`
	ImageURL    string          `json:"imageUrl" validate:"max=500"`
}

type VariantInput struct {
	Name     string               `json:"name" validate:"required,max=200"`
	SKU      string               `json:"sku" validate:"max=64"`
	Price    *decimal.NullDecimal `json:"price"`
	Stock    int                  `json:"stock" validate:"min=0"`
	ImageURL string               `json:"imageUrl" validate:"max=500"`
}

type OfferInput struct {
	Code        string            `json:"code" validate:"required,max=64"`
	Type        models.OfferType  `json:"type" validate:"required,oneof=percent fixed"`
	Value       decimal.Decimal   `json:"value"`
	Scope       models.OfferScope `json:"scope" validate:"omitempty,oneof=all product"`
	ProductID   *string           `json:"productId"`
	MinSubtotal decimal.Decimal   `json:"minSubtotal"`
	StartsAt    *time.Time        `json:"startsAt"`
	EndsAt      *time.Time        `json:"endsAt"`
	UsageLimit  *int              `json:"usageLimit" validate:"omitempty,min=1"`
	Active      *bool             `json:"active"`
}

type ProductFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	PageSize   int
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := checkPrice("price", in.Price); err != nil {
		return nil, err
	}
	p := &models.Product{
		Name:        strings.TrimSpace(in.Name),
		Slug:        Slugify(in.Slug),
		SKU:         strings.TrimSpace(in.SKU),
		Description: in.Description,
		Price:       models.Round2(in.Price),
		Stock:       in.Stock,
		Active:      in.Active == nil || *in.Active,
		ImageURL:    in.ImageURL,
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Name) + "-" + uuid.NewString()[:6]
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, s.writeError("product", err)
	}
	return p, nil
}

// GetProduct loads a product with variants; activeOnly hides inactive ones.
func (s *Service) GetProduct(ctx context.Context, idOrSlug string, activeOnly bool) (*models.Product, error) {
	q := s.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ? OR slug = ?", idOrSlug, idOrSlug)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var p models.Product
	err := q.First(&p).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &p, nil
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 24
	}
	q := s.db.WithContext(ctx).Model(&models.Product{})
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		q = q.Where("name LIKE ? OR sku LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}
	var out []models.Product
	err := q.Preload("Variants").
		Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return out, total, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	if err := checkPrice("price", in.Price); err != nil {
		return nil, err
	}
	p, err := s.GetProduct(ctx, id, false)
	if err != nil {
		return nil, err
	}
	changes := map[string]interface{}{
		"name":        strings.TrimSpace(in.Name),
		"sku":         strings.TrimSpace(in.SKU),
		"description": in.Description,
		"price":       models.Round2(in.Price),
		"stock":       in.Stock,
		"image_url":   in.ImageURL,
	}
	if slug := Slugify(in.Slug); slug != "" {
		changes["slug"] = slug
	}
	if in.Active != nil {
		changes["active"] = *in.Active
	}
	target := &models.Product{Base: models.Base{ID: p.ID}}
	if err := s.db.WithContext(ctx).Model(target).Updates(changes).Error; err != nil {
		return nil, s.writeError("product", err)
	}
	return s.GetProduct(ctx, p.ID, false)
}

// DeleteProduct removes a product and its variants. Order items keep their
// snapshot; cart lines pointing at it are dropped.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete product: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("product not found")
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductVariant{}).Error; err != nil {
			return fmt.Errorf("failed to delete variants: %w", err)
		}
		return tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error
	})
}

func (s *Service) AddVariant(ctx context.Context, productID string, in VariantInput) (*models.ProductVariant, error) {
	if _, err := s.GetProduct(ctx, productID, false); err != nil {
		return nil, err
	}
	v := &models.ProductVariant{
		ProductID: productID,
		Name:      strings.TrimSpace(in.Name),
		SKU:       strings.TrimSpace(in.SKU),
		Stock:     in.Stock,
		ImageURL:  in.ImageURL,
	}
	if in.Price != nil && in.Price.Valid {
		if err := checkPrice("price", in.Price.Decimal); err != nil {
			return nil, err
		}
		v.Price = decimal.NewNullDecimal(models.Round2(in.Price.Decimal))
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, s.writeError("variant", err)
	}
	return v, nil
}

func (s *Service) UpdateVariant(ctx context.Context, productID, variantID string, in VariantInput) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := s.db.WithContext(ctx).Where("id = ? AND product_id = ?", variantID, productID).First(&v).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("variant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load variant: %w", err)
	}

	changes := map[string]interface{}{
		"name":      strings.TrimSpace(in.Name),
		"sku":       strings.TrimSpace(in.SKU),
		"stock":     in.Stock,
		"image_url": in.ImageURL,
	}
	if in.Price != nil {
		if in.Price.Valid {
			if err := checkPrice("price", in.Price.Decimal); err != nil {
				return nil, err
			}
			changes["price"] = decimal.NewNullDecimal(models.Round2(in.Price.Decimal))
		} else {
			changes["price"] = decimal.NullDecimal{}
		}
	}
	if err := s.db.WithContext(ctx).Model(&v).Updates(changes).Error; err != nil {
		return nil, s.writeError("variant", err)
	}
	if err := s.db.WithContext(ctx).First(&v, "id = ?", v.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload variant: %w", err)
	}
	return &v, nil
}

func (s *Service) DeleteVariant(ctx context.Context, productID, variantID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND product_id = ?", variantID, productID).Delete(&models.ProductVariant{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete variant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("variant not found")
		}
		return tx.Where("variant_id = ?", variantID).Delete(&models.CartItem{}).Error
	})
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

func checkPrice(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return apperr.Validation("amount must not be negative", map[string]string{field: "min=0"})
	}
	return nil
}

// writeError reports unique violations as conflicts. Drivers word them
// differently, so the message is matched loosely.
func (s *Service) writeError(entity string, err error) error {
	if repository.IsDuplicate(err) {
		return apperr.Conflict(apperr.CodeDuplicate, entity+" already exists")
	}
	s.logger.Error("catalog write failed", zap.String("entity", entity), zap.Error(err))
	return fmt.Errorf("failed to save %s: %w", entity, err)
}
