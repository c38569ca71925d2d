package repotest

import (
	"testing"

	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeedProduct inserts an active product.
func SeedProduct(t testing.TB, db *gorm.DB, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:   name,
		Slug:   name + "-" + uuid.NewString()[:8],
		SKU:    "SKU-" + uuid.NewString()[:6],
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

// SeedVariant inserts a variant; an empty price inherits the product price.
func SeedVariant(t testing.TB, db *gorm.DB, productID, name, price string, stock int) *models.ProductVariant {
	t.Helper()
	v := &models.ProductVariant{
		ProductID: productID,
		Name:      name,
		SKU:       "VAR-" + uuid.NewString()[:6],
		Stock:     stock,
	}
	if price != "" {
		v.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return v
}
