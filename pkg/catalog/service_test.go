package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := repotest.NewDB(t)
	return NewService(db, zap.NewNop()), db
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "blue-t-shirt-xl", Slugify("  Blue T-Shirt (XL)! "))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestProductCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Linen Shirt", Slug: "Linen Shirt", Price: money("39.999"), Stock: 4})
	require.NoError(t, err)
	assert.Equal(t, "linen-shirt", p.Slug)
	assert.True(t, p.Active)
	assert.True(t, money("40.00").Equal(p.Price))

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Other", Slug: "linen-shirt", Price: money("1")})
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicate))

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Negative", Price: money("-1")})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	bySlug, err := svc.GetProduct(ctx, "linen-shirt", true)
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySlug.ID)

	off := false
	updated, err := svc.UpdateProduct(ctx, p.ID, ProductInput{Name: "Linen Shirt", Price: money("35"), Stock: 2, Active: &off})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, 2, updated.Stock)
	assert.Equal(t, "linen-shirt", updated.Slug)

	_, err = svc.GetProduct(ctx, p.ID, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "inactive products are hidden from shoppers")

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), apperr.ErrNotFound)
}

func TestListProductsFilters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	repotest.SeedProduct(t, db, "Mug", "8.00", 3)
	repotest.SeedProduct(t, db, "Teapot", "25.00", 1)
	hidden := repotest.SeedProduct(t, db, "Old Mug", "5.00", 0)
	require.NoError(t, db.Model(hidden).Update("active", false).Error)

	all, total, err := svc.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	mugs, total, err := svc.ListProducts(ctx, ProductFilter{Search: "Mug", ActiveOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mugs, 1)
	assert.Equal(t, "Mug", mugs[0].Name)

	page, total, err := svc.ListProducts(ctx, ProductFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 1)
}

func TestVariants(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	p := repotest.SeedProduct(t, db, "Hoodie", "50.00", 0)

	price := decimal.NewNullDecimal(money("55"))
	v, err := svc.AddVariant(ctx, p.ID, VariantInput{Name: "XL", Price: &price, Stock: 2})
	require.NoError(t, err)
	assert.True(t, money("55").Equal(v.UnitPrice(p)))

	inherit := decimal.NullDecimal{}
	v, err = svc.UpdateVariant(ctx, p.ID, v.ID, VariantInput{Name: "XL", Price: &inherit, Stock: 1})
	require.NoError(t, err)
	assert.False(t, v.Price.Valid)
	assert.True(t, money("50").Equal(v.UnitPrice(p)))

	_, err = svc.AddVariant(ctx, "missing", VariantInput{Name: "S"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.UpdateVariant(ctx, "other-product", v.ID, VariantInput{Name: "XL"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	loaded, err := svc.GetProduct(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Len(t, loaded.Variants, 1)

	require.NoError(t, svc.DeleteVariant(ctx, p.ID, v.ID))
	assert.ErrorIs(t, svc.DeleteVariant(ctx, p.ID, v.ID), apperr.ErrNotFound)
}

func TestOfferCRUD(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	p := repotest.SeedProduct(t, db, "Lamp", "30.00", 5)

	o, err := svc.CreateOffer(ctx, OfferInput{Code: " spring10 ", Type: models.OfferPercent, Value: money("10")})
	require.NoError(t, err)
	assert.Equal(t, "SPRING10", o.Code)
	assert.Equal(t, models.ScopeAll, o.Scope)
	assert.True(t, o.Active)

	_, err = svc.CreateOffer(ctx, OfferInput{Code: "SPRING10", Type: models.OfferFixed, Value: money("5")})
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicate))

	_, err = svc.CreateOffer(ctx, OfferInput{Code: "TOOMUCH", Type: models.OfferPercent, Value: money("150")})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "lte=100", e.Fields["value"])

	_, err = svc.CreateOffer(ctx, OfferInput{Code: "LAMP", Type: models.OfferFixed, Value: money("5"), Scope: models.ScopeProduct})
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "required", e.Fields["productId"])

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = svc.CreateOffer(ctx, OfferInput{Code: "BACKWARDS", Type: models.OfferFixed, Value: money("5"), StartsAt: &start, EndsAt: &end})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	require.NoError(t, db.Model(o).Update("used_count", 3).Error)
	off := false
	updated, err := svc.UpdateOffer(ctx, o.ID, OfferInput{
		Code: "spring10", Type: models.OfferFixed, Value: money("7.5"),
		Scope: models.ScopeProduct, ProductID: &p.ID, Active: &off,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, 3, updated.UsedCount)

	stored, err := svc.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferFixed, stored.Type)
	assert.False(t, stored.Active)
	require.NotNil(t, stored.ProductID)
	assert.Equal(t, p.ID, *stored.ProductID)
	assert.Equal(t, 3, stored.UsedCount)

	list, err := svc.ListOffers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteOffer(ctx, o.ID))
	_, err = svc.GetOffer(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWriteErrorOnlyMapsDuplicateKeys(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.writeError("product", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey))
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicate))

	cause := errors.New("disk I/O error while rebuilding unique index idx_products_slug")
	err = svc.writeError("product", cause)
	assert.False(t, apperr.HasCode(err, apperr.CodeDuplicate))
	assert.ErrorIs(t, err, cause)

	err = svc.writeError("offer", errors.New("duplicate column name: value"))
	assert.False(t, apperr.HasCode(err, apperr.CodeDuplicate))
}
