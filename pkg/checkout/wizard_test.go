package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	calls   atomic.Int32
	release chan struct{}
	entered chan struct{}
	err     error
	got     order.PlaceInput
}

func (f *fakePlacer) CreateFromCart(ctx context.Context, in order.PlaceInput) (*models.Order, error) {
	f.calls.Add(1)
	f.got = in
	if f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{OrderNumber: "ORD-20250101-000001", PaymentStatus: in.PaymentStatus}, nil
}

var methods = []order.ShippingMethod{
	{ID: "standard", Name: "Standard", Carrier: "Aramex", Price: decimal.RequireFromString("5.00"), EstimatedDays: 5},
	{ID: "express", Name: "Express", Carrier: "DHL", Price: decimal.RequireFromString("15.00"), EstimatedDays: 2},
}

func contact() Contact {
	return Contact{
		Email: " ada@example.com ",
		Name:  "Ada Lovelace",
		Address: models.Address{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Line1:      "12 Analytical St",
			City:       "London",
			PostalCode: "N1 9GU",
			Country:    "GB",
			Phone:      "+441234567",
		},
	}
}

func card() *Card {
	return &Card{Number: "4242 4242 4242 4242", Name: "A LOVELACE", Expiry: "12/99", CVV: "123"}
}

func readyWizard(t *testing.T, opts Options, p Payment) *Wizard {
	t.Helper()
	w := NewWizard(cart.Identity{Token: "guest-cart"}, methods, nil, opts)
	require.NoError(t, w.SetAddress(contact()))
	require.NoError(t, w.SelectShipping("express"))
	require.NoError(t, w.SelectPayment(p))
	require.NoError(t, w.Review())
	return w
}

func TestWizardHappyPath(t *testing.T) {
	w := NewWizard(cart.Identity{Token: "guest-cart"}, methods, nil, Options{})
	assert.Equal(t, StepAddress, w.Step())

	require.NoError(t, w.SetAddress(contact()))
	assert.Equal(t, StepShipping, w.Step())
	require.NoError(t, w.SelectShipping("standard"))
	assert.Equal(t, StepPayment, w.Step())
	require.NoError(t, w.SelectPayment(Payment{Method: models.PaymentCashOnDelivery}))
	assert.Equal(t, StepReview, w.Step())
	require.NoError(t, w.Review())

	placer := &fakePlacer{}
	o, err := w.Place(context.Background(), placer)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20250101-000001", o.OrderNumber)
	assert.Equal(t, StepDone, w.Step())

	assert.Equal(t, "ada@example.com", placer.got.Email)
	assert.Equal(t, "standard", placer.got.Shipping.ID)
	assert.Equal(t, models.PaymentPending, placer.got.PaymentStatus)
	assert.Equal(t, "guest-cart", placer.got.Identity.Token)

	again, err := w.Place(context.Background(), placer)
	require.NoError(t, err)
	assert.Same(t, o, again)
	assert.Equal(t, int32(1), placer.calls.Load())
}

func TestWizardValidatesSteps(t *testing.T) {
	w := NewWizard(cart.Identity{Token: "c"}, methods, nil, Options{})

	err := w.SelectShipping("standard")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "address first")

	bad := contact()
	bad.Address.Country = "GBR"
	err = w.SetAddress(bad)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "len", e.Fields["address.country"])

	require.NoError(t, w.SetAddress(contact()))
	assert.True(t, apperr.HasCode(w.SelectShipping("teleport"), apperr.CodeValidation))

	require.NoError(t, w.SelectShipping("standard"))
	err = w.SelectPayment(Payment{Method: "bitcoin"})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = w.Place(context.Background(), &fakePlacer{})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "payment still missing")
}

func TestCardPayments(t *testing.T) {
	w := NewWizard(cart.Identity{Token: "c"}, methods, nil, Options{})
	require.NoError(t, w.SetAddress(contact()))
	require.NoError(t, w.SelectShipping("standard"))

	err := w.SelectPayment(Payment{Method: models.PaymentCard})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "card details required")

	badCard := card()
	badCard.Expiry = "01/20"
	err = w.SelectPayment(Payment{Method: models.PaymentCard, Card: badCard})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	err = w.SelectPayment(Payment{Method: models.PaymentCard, Card: card()})
	assert.True(t, apperr.HasCode(err, apperr.CodePaymentUnavailable))

	enabled := readyWizard(t, Options{CardPaymentsEnabled: true}, Payment{Method: models.PaymentCard, Card: card()})
	placer := &fakePlacer{}
	o, err := enabled.Place(context.Background(), placer)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)
}

func TestPlaceRejectsSecondCallInFlight(t *testing.T) {
	w := readyWizard(t, Options{}, Payment{Method: models.PaymentCashOnDelivery})
	placer := &fakePlacer{release: make(chan struct{}), entered: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := w.Place(context.Background(), placer)
		done <- err
	}()
	<-placer.entered

	assert.Equal(t, StepPlacing, w.Step())
	_, err := w.Place(context.Background(), placer)
	assert.True(t, apperr.HasCode(err, apperr.CodeCheckoutInFlight))
	assert.True(t, apperr.HasCode(w.SetAddress(contact()), apperr.CodeCheckoutInFlight))

	close(placer.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), placer.calls.Load())
}

func TestFailedPlaceCanBeRetried(t *testing.T) {
	w := readyWizard(t, Options{}, Payment{Method: models.PaymentCashOnDelivery})

	_, err := w.Place(context.Background(), &fakePlacer{err: apperr.ErrStockConflict})
	assert.ErrorIs(t, err, apperr.ErrStockConflict)
	assert.Equal(t, StepFailed, w.Step())
	assert.True(t, errors.Is(w.Err(), apperr.ErrStockConflict))

	o, err := w.Place(context.Background(), &fakePlacer{})
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, StepDone, w.Step())
	assert.NoError(t, w.Err())
}

func TestServiceCheckout(t *testing.T) {
	placer := &fakePlacer{}
	svc := NewService(placer, methods, nil, Options{})

	req := Request{Contact: contact(), ShippingMethod: "express", Payment: Payment{Method: models.PaymentCashOnDelivery}}
	o, err := svc.Checkout(context.Background(), cart.Identity{UserID: "u1"}, req)
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, "u1", placer.got.Identity.UserID)
	assert.Len(t, svc.ShippingMethods(), 2)

	req.ShippingMethod = ""
	_, err = svc.Checkout(context.Background(), cart.Identity{UserID: "u1"}, req)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
