// Package cart maintains guest and user carts and their derived totals.
package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Identity selects a cart: by user for signed-in callers, by cookie token
// for guests. Mode separates the buy-now cart from the normal one.
type Identity struct {
	UserID string
	Token  string
	Mode   models.CartMode
}

func (id Identity) mode() models.CartMode {
	if id.Mode == "" {
		return models.CartModeNormal
	}
	return id.Mode
}

type AddItemInput struct {
	ProductID string
	VariantID *string
	Quantity  int
}

type Service struct {
	db       *gorm.DB
	logger   *zap.Logger
	currency string
	taxRate  decimal.Decimal
	nowFunc  func() time.Time
}

func NewService(db *gorm.DB, shop *config.ShopConfig, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		logger:   logger,
		currency: shop.Currency,
		taxRate:  shop.TaxRateDecimal(),
		nowFunc:  time.Now,
	}
}

// TaxRate is the rate applied on every recalculation.
func (s *Service) TaxRate() decimal.Decimal {
	return s.taxRate
}

// Fetch returns the caller's cart, creating an empty one on first access.
// Guests receive a new cart when their token is unknown; its ID is the new token.
func (s *Service) Fetch(ctx context.Context, id Identity) (*models.Cart, error) {
	var cart *models.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.resolve(tx, id)
		cart = c
		return err
	})
	return cart, err
}

// AddItem adds quantity of a product (or variant), merging with an existing line.
// In buy-now mode the cart holds a single line, so previous lines are dropped.
func (s *Service) AddItem(ctx context.Context, id Identity, in AddItemInput) (*models.Cart, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 0 {
		return nil, apperr.Validation("quantity must be a positive integer", map[string]string{"quantity": "min=1"})
	}
	if in.VariantID != nil && strings.TrimSpace(*in.VariantID) == "" {
		in.VariantID = nil
	}

	return s.mutate(ctx, id, func(tx *gorm.DB, cart *models.Cart) error {
		product, variant, err := loadPurchasable(tx, in.ProductID, in.VariantID)
		if err != nil {
			return err
		}

		if cart.Mode == models.CartModeBuyNow {
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return fmt.Errorf("failed to reset buy-now cart: %w", err)
			}
			cart.Items = nil
		}

		var existing *models.CartItem
		for i := range cart.Items {
			if cart.Items[i].SameLine(in.ProductID, in.VariantID) {
				existing = &cart.Items[i]
				break
			}
		}

		wanted := in.Quantity
		if existing != nil {
			wanted += existing.Quantity
		}
		if wanted > available(product, variant) {
			return apperr.ErrOutOfStock
		}

		if existing != nil {
			existing.Quantity = wanted
			existing.TotalPrice = LineTotal(existing.UnitPrice, wanted)
			return tx.Model(existing).Select("quantity", "total_price").Updates(existing).Error
		}

		unit := variant.UnitPrice(product)
		item := &models.CartItem{
			CartID:     cart.ID,
			ProductID:  product.ID,
			VariantID:  in.VariantID,
			Quantity:   in.Quantity,
			UnitPrice:  unit,
			TotalPrice: LineTotal(unit, in.Quantity),
		}
		return tx.Create(item).Error
	})
}

// UpdateQuantity sets the quantity of a line; zero removes it.
func (s *Service) UpdateQuantity(ctx context.Context, id Identity, itemID string, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, apperr.Validation("quantity must be a positive integer", map[string]string{"quantity": "min=0"})
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, id, itemID)
	}

	return s.mutate(ctx, id, func(tx *gorm.DB, cart *models.Cart) error {
		item := findItem(cart, itemID)
		if item == nil {
			return apperr.NotFound("cart item not found")
		}
		if quantity > item.Quantity {
			product, variant, err := loadPurchasable(tx, item.ProductID, item.VariantID)
			if err != nil {
				return err
			}
			if quantity > available(product, variant) {
				return apperr.ErrOutOfStock
			}
		}
		item.Quantity = quantity
		item.TotalPrice = LineTotal(item.UnitPrice, quantity)
		return tx.Model(item).Select("quantity", "total_price").Updates(item).Error
	})
}

// RemoveItem deletes a line. Unknown ids leave the cart unchanged.
func (s *Service) RemoveItem(ctx context.Context, id Identity, itemID string) (*models.Cart, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, cart *models.Cart) error {
		return tx.Where("id = ? AND cart_id = ?", itemID, cart.ID).Delete(&models.CartItem{}).Error
	})
}

// ApplyDiscount validates code against the offers and stores it on the cart.
// On failure the cart is left as it was.
func (s *Service) ApplyDiscount(ctx context.Context, id Identity, code string) (*models.Cart, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.ErrInvalidCode
	}
	return s.mutate(ctx, id, func(tx *gorm.DB, cart *models.Cart) error {
		offer, err := findOffer(tx, code)
		if err != nil {
			return err
		}
		if _, err := EvaluateOffer(offer, cart.Items, s.nowFunc()); err != nil {
			return err
		}
		cart.DiscountCode = code
		return nil
	})
}

func (s *Service) RemoveDiscount(ctx context.Context, id Identity) (*models.Cart, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, cart *models.Cart) error {
		cart.DiscountCode = ""
		return nil
	})
}

// Clear empties the cart. The cart record itself is kept.
func (s *Service) Clear(ctx context.Context, id Identity) (*models.Cart, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, cart *models.Cart) error {
		cart.DiscountCode = ""
		return ClearItems(tx, cart)
	})
}

// Merge moves the lines of a guest cart into the user's normal cart and
// deletes the guest cart. Quantities of matching lines are added.
func (s *Service) Merge(ctx context.Context, guestToken, userID string) (*models.Cart, error) {
	userIdentity := Identity{UserID: userID, Mode: models.CartModeNormal}
	return s.mutate(ctx, userIdentity, func(tx *gorm.DB, cart *models.Cart) error {
		var guest models.Cart
		err := tx.Preload("Items").
			Where("id = ? AND user_id IS NULL AND mode = ?", guestToken, models.CartModeNormal).
			First(&guest).Error
		if repository.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load guest cart: %w", err)
		}

		for _, g := range guest.Items {
			var target *models.CartItem
			for i := range cart.Items {
				if cart.Items[i].SameLine(g.ProductID, g.VariantID) {
					target = &cart.Items[i]
					break
				}
			}
			if target != nil {
				target.Quantity += g.Quantity
				target.TotalPrice = LineTotal(target.UnitPrice, target.Quantity)
				if err := tx.Model(target).Select("quantity", "total_price").Updates(target).Error; err != nil {
					return err
				}
				continue
			}
			moved := &models.CartItem{
				CartID:     cart.ID,
				ProductID:  g.ProductID,
				VariantID:  g.VariantID,
				Quantity:   g.Quantity,
				UnitPrice:  g.UnitPrice,
				TotalPrice: LineTotal(g.UnitPrice, g.Quantity),
			}
			if err := tx.Create(moved).Error; err != nil {
				return err
			}
		}
		if cart.DiscountCode == "" {
			cart.DiscountCode = guest.DiscountCode
		}

		if err := tx.Where("cart_id = ?", guest.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Cart{}, "id = ?", guest.ID).Error
	})
}

// mutate runs fn on the caller's cart inside a transaction and recomputes totals.
func (s *Service) mutate(ctx context.Context, id Identity, fn func(tx *gorm.DB, cart *models.Cart) error) (*models.Cart, error) {
	var out *models.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.resolve(tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, cart); err != nil {
			return err
		}
		if err := loadItems(tx, cart); err != nil {
			return err
		}
		if err := s.Recalculate(tx, cart); err != nil {
			return err
		}
		out = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Recalculate recomputes line totals and cart totals and persists them.
// A stored discount code that no longer applies is dropped.
func (s *Service) Recalculate(tx *gorm.DB, cart *models.Cart) error {
	for i := range cart.Items {
		cart.Items[i].TotalPrice = LineTotal(cart.Items[i].UnitPrice, cart.Items[i].Quantity)
	}
	subtotal := Subtotal(cart.Items)

	discount := decimal.Zero
	if cart.DiscountCode != "" {
		offer, err := findOffer(tx, cart.DiscountCode)
		if err == nil {
			discount, err = EvaluateOffer(offer, cart.Items, s.nowFunc())
		}
		if err != nil {
			if _, ok := apperr.As(err); !ok {
				return err
			}
			s.logger.Debug("dropping discount code",
				zap.String("cart_id", cart.ID),
				zap.String("code", cart.DiscountCode),
				zap.Error(err))
			cart.DiscountCode = ""
			discount = decimal.Zero
		}
	}

	ComputeTotals(subtotal, discount, s.taxRate, cart.ShippingAmount).Apply(cart)

	return tx.Model(cart).
		Select("discount_code", "subtotal", "discount_amount", "tax_amount", "shipping_amount", "total_amount", "updated_at").
		Updates(map[string]interface{}{
			"discount_code":   cart.DiscountCode,
			"subtotal":        cart.Subtotal,
			"discount_amount": cart.DiscountAmount,
			"tax_amount":      cart.TaxAmount,
			"shipping_amount": cart.ShippingAmount,
			"total_amount":    cart.TotalAmount,
			"updated_at":      s.nowFunc(),
		}).Error
}

// LockForCheckout loads the caller's existing cart and its items inside tx,
// holding a row lock until tx ends. A missing cart is reported as empty.
func (s *Service) LockForCheckout(tx *gorm.DB, id Identity) (*models.Cart, error) {
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("mode = ?", id.mode())
	switch {
	case id.UserID != "":
		q = q.Where("user_id = ?", id.UserID)
	case id.Token != "":
		q = q.Where("id = ? AND user_id IS NULL", id.Token)
	default:
		return nil, apperr.ErrEmptyCart
	}

	var cart models.Cart
	err := q.First(&cart).Error
	if repository.IsNotFound(err) {
		return nil, apperr.ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	if err := loadItems(tx, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// resolve loads the caller's cart with items, creating it when missing.
func (s *Service) resolve(tx *gorm.DB, id Identity) (*models.Cart, error) {
	mode := id.mode()
	if !mode.Valid() {
		return nil, apperr.Validation("unknown cart mode", map[string]string{"mode": string(mode)})
	}

	q := tx.Where("mode = ?", mode)
	switch {
	case id.UserID != "":
		q = q.Where("user_id = ?", id.UserID)
	case id.Token != "":
		q = q.Where("id = ? AND user_id IS NULL", id.Token)
	default:
		return s.create(tx, id, mode)
	}

	var cart models.Cart
	err := q.First(&cart).Error
	if repository.IsNotFound(err) {
		return s.create(tx, id, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if err := loadItems(tx, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *Service) create(tx *gorm.DB, id Identity, mode models.CartMode) (*models.Cart, error) {
	cart := &models.Cart{
		Mode:     mode,
		Currency: s.currency,
		Items:    []models.CartItem{},
	}
	if id.UserID != "" {
		uid := id.UserID
		cart.UserID = &uid
	}
	if err := tx.Create(cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

func loadItems(tx *gorm.DB, cart *models.Cart) error {
	var items []models.CartItem
	if err := tx.Where("cart_id = ?", cart.ID).Order("created_at ASC, id ASC").Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Items = items
	return nil
}

// ClearItems deletes every line and zeroes the totals of cart.
func ClearItems(tx *gorm.DB, cart *models.Cart) error {
	if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	cart.Items = []models.CartItem{}
	return nil
}

func findItem(cart *models.Cart, itemID string) *models.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			return &cart.Items[i]
		}
	}
	return nil
}

func findOffer(tx *gorm.DB, code string) (*models.Offer, error) {
	var offer models.Offer
	err := tx.Where("code = ?", code).First(&offer).Error
	if repository.IsNotFound(err) {
		return nil, apperr.ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	return &offer, nil
}

// NormalizeCode trims and upper-cases a discount code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// loadPurchasable returns the active product and, when requested, its variant.
func loadPurchasable(tx *gorm.DB, productID string, variantID *string) (*models.Product, *models.ProductVariant, error) {
	var product models.Product
	err := tx.Where("id = ? AND active = ?", productID, true).First(&product).Error
	if repository.IsNotFound(err) {
		return nil, nil, apperr.NotFound("product not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load product: %w", err)
	}

	if variantID == nil {
		return &product, nil, nil
	}
	var variant models.ProductVariant
	err = tx.Where("id = ? AND product_id = ?", *variantID, product.ID).First(&variant).Error
	if repository.IsNotFound(err) {
		return nil, nil, apperr.NotFound("variant not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load variant: %w", err)
	}
	return &product, &variant, nil
}

func available(p *models.Product, v *models.ProductVariant) int {
	if v != nil {
		return v.Stock
	}
	return p.Stock
}
