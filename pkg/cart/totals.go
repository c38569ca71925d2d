package cart

import (
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
)

// Totals are the derived monetary fields of a cart or order.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal is unitPrice × quantity rounded to cents.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return models.Round2(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Subtotal sums the line totals of items.
func Subtotal(items []models.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(LineTotal(it.UnitPrice, it.Quantity))
	}
	return sum
}

// ComputeTotals applies tax to the discounted subtotal and adds shipping.
// total = subtotal - discount + tax + shipping
func ComputeTotals(subtotal, discount, taxRate, shipping decimal.Decimal) Totals {
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	tax := models.Round2(subtotal.Sub(discount).Mul(taxRate))
	return WithTax(subtotal, discount, tax, shipping)
}

// WithTax builds totals from an already known tax amount.
func WithTax(subtotal, discount, tax, shipping decimal.Decimal) Totals {
	t := Totals{
		Subtotal: models.Round2(subtotal),
		Discount: models.Round2(discount),
		Tax:      models.Round2(tax),
		Shipping: models.Round2(shipping),
	}
	t.Total = t.Subtotal.Sub(t.Discount).Add(t.Tax).Add(t.Shipping)
	return t
}

// Apply copies the totals onto the cart.
func (t Totals) Apply(c *models.Cart) {
	c.Subtotal = t.Subtotal
	c.DiscountAmount = t.Discount
	c.TaxAmount = t.Tax
	c.ShippingAmount = t.Shipping
	c.TotalAmount = t.Total
}

// EvaluateOffer returns the discount the offer grants on items at time now.
func EvaluateOffer(offer *models.Offer, items []models.CartItem, now time.Time) (decimal.Decimal, error) {
	if offer == nil || !offer.Active {
		return decimal.Zero, apperr.ErrInvalidCode
	}
	if offer.EndsAt != nil && now.After(*offer.EndsAt) {
		return decimal.Zero, apperr.ErrExpiredCode
	}
	if offer.StartsAt != nil && now.Before(*offer.StartsAt) {
		return decimal.Zero, apperr.ErrInvalidCode
	}
	if offer.UsageLimit != nil && offer.UsedCount >= *offer.UsageLimit {
		return decimal.Zero, apperr.ErrInvalidCode
	}

	base := decimal.Zero
	switch offer.Scope {
	case models.ScopeProduct:
		if offer.ProductID == nil {
			return decimal.Zero, apperr.ErrInvalidCode
		}
		for _, it := range items {
			if it.ProductID == *offer.ProductID {
				base = base.Add(LineTotal(it.UnitPrice, it.Quantity))
			}
		}
	default:
		base = Subtotal(items)
	}
	if base.IsZero() {
		return decimal.Zero, apperr.ErrInvalidCode
	}
	if Subtotal(items).LessThan(offer.MinSubtotal) {
		return decimal.Zero, apperr.ErrInvalidCode
	}

	var amount decimal.Decimal
	switch offer.Type {
	case models.OfferPercent:
		amount = base.Mul(offer.Value).Div(decimal.NewFromInt(100))
	case models.OfferFixed:
		amount = offer.Value
	default:
		return decimal.Zero, apperr.ErrInvalidCode
	}
	if amount.GreaterThan(base) {
		amount = base
	}
	return models.Round2(amount), nil
}
