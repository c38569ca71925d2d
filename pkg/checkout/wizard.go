// Package checkout drives the multi-step checkout and hands the validated
// selections to the order service exactly once.
package checkout

import (
	"context"
	"strings"
	"sync"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/validation"
	validatorv10 "github.com/go-playground/validator/v10"
)

type Step int

const (
	StepAddress Step = iota
	StepShipping
	StepPayment
	StepReview
	StepPlacing
	StepDone
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepAddress:
		return "address"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	case StepPlacing:
		return "placing"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	}
	return "unknown"
}

// Contact is the address step input.
type Contact struct {
	Email   string         `json:"email" validate:"required,email,max=200"`
	Name    string         `json:"name" validate:"max=200"`
	Address models.Address `json:"address"`
}

// Card is collected for card payments only.
type Card struct {
	Number string `json:"number" validate:"required,cardnumber"`
	Name   string `json:"name" validate:"required,max=100"`
	Expiry string `json:"expiry" validate:"required,cardexpiry"`
	CVV    string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

type Payment struct {
	Method models.PaymentMethod `json:"method" validate:"required,oneof=cash_on_delivery card"`
	Card   *Card                `json:"card" validate:"-"`
}

// Placer creates the order. *order.Service satisfies it.
type Placer interface {
	CreateFromCart(ctx context.Context, in order.PlaceInput) (*models.Order, error)
}

type Options struct {
	CardPaymentsEnabled bool
}

// Wizard holds the selections of one checkout. Steps may be revisited in
// any order; Place checks all of them again before committing.
type Wizard struct {
	mu       sync.Mutex
	identity cart.Identity
	methods  []order.ShippingMethod
	validate *validatorv10.Validate
	opts     Options

	step     Step
	contact  *Contact
	shipping *order.ShippingMethod
	payment  *Payment
	order    *models.Order
	lastErr  error
}

func NewWizard(identity cart.Identity, methods []order.ShippingMethod, v *validatorv10.Validate, opts Options) *Wizard {
	if v == nil {
		v = validation.New()
	}
	return &Wizard{
		identity: identity,
		methods:  methods,
		validate: v,
		opts:     opts,
		step:     StepAddress,
	}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Err is the failure of the last Place call, if any.
func (w *Wizard) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Wizard) SetAddress(c Contact) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	c.Email = strings.TrimSpace(c.Email)
	if err := validation.Struct(w.validate, c); err != nil {
		return err
	}
	w.contact = &c
	w.advance(StepShipping)
	return nil
}

func (w *Wizard) SelectShipping(methodID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if w.contact == nil {
		return apperr.Validation("address is required before shipping", map[string]string{"address": "required"})
	}
	m := w.findMethod(methodID)
	if m == nil {
		return apperr.Validation("unknown shipping method", map[string]string{"shippingMethod": "oneof"})
	}
	w.shipping = m
	w.advance(StepPayment)
	return nil
}

func (w *Wizard) SelectPayment(p Payment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if w.shipping == nil {
		return apperr.Validation("shipping method is required before payment", map[string]string{"shippingMethod": "required"})
	}
	if err := w.checkPayment(p); err != nil {
		return err
	}
	w.payment = &p
	w.advance(StepReview)
	return nil
}

// Review confirms the selections are complete.
func (w *Wizard) Review() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if err := w.checkAll(); err != nil {
		return err
	}
	w.step = StepReview
	return nil
}

// Place validates every step and creates the order. A call made while
// another is in flight fails with CHECKOUT_IN_FLIGHT; a call after success
// returns the order already placed.
func (w *Wizard) Place(ctx context.Context, placer Placer) (*models.Order, error) {
	w.mu.Lock()
	switch w.step {
	case StepPlacing:
		w.mu.Unlock()
		return nil, apperr.Conflict(apperr.CodeCheckoutInFlight, "order is already being placed")
	case StepDone:
		placed := w.order
		w.mu.Unlock()
		return placed, nil
	}
	if err := w.checkAll(); err != nil {
		w.mu.Unlock()
		return nil, err
	}

	status := models.PaymentPending
	if w.payment.Method == models.PaymentCard {
		status = models.PaymentPaid
	}
	in := order.PlaceInput{
		Identity:      w.identity,
		Email:         w.contact.Email,
		Name:          w.contact.Name,
		Address:       w.contact.Address,
		Shipping:      *w.shipping,
		PaymentMethod: w.payment.Method,
		PaymentStatus: status,
	}
	w.step = StepPlacing
	w.mu.Unlock()

	placed, err := placer.CreateFromCart(ctx, in)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.step = StepFailed
		w.lastErr = err
		return nil, err
	}
	w.step = StepDone
	w.order = placed
	w.lastErr = nil
	return placed, nil
}

func (w *Wizard) checkAll() error {
	if w.contact == nil {
		return apperr.Validation("address is required", map[string]string{"address": "required"})
	}
	if err := validation.Struct(w.validate, *w.contact); err != nil {
		return err
	}
	if w.shipping == nil || w.findMethod(w.shipping.ID) == nil {
		return apperr.Validation("shipping method is required", map[string]string{"shippingMethod": "required"})
	}
	if w.payment == nil {
		return apperr.Validation("payment method is required", map[string]string{"payment.method": "required"})
	}
	return w.checkPayment(*w.payment)
}

func (w *Wizard) checkPayment(p Payment) error {
	if err := validation.Struct(w.validate, p); err != nil {
		return err
	}
	if p.Method != models.PaymentCard {
		return nil
	}
	if p.Card == nil {
		return apperr.Validation("card details are required", map[string]string{"card": "required"})
	}
	if err := validation.Struct(w.validate, *p.Card); err != nil {
		return err
	}
	if !w.opts.CardPaymentsEnabled {
		return apperr.Conflict(apperr.CodePaymentUnavailable, "card payments are not available")
	}
	return nil
}

func (w *Wizard) editable() error {
	switch w.step {
	case StepPlacing:
		return apperr.Conflict(apperr.CodeCheckoutInFlight, "order is already being placed")
	case StepDone:
		return apperr.Conflict(apperr.CodeCheckoutInFlight, "order has already been placed")
	}
	return nil
}

// advance moves forward only; revisiting an earlier step keeps later progress.
func (w *Wizard) advance(to Step) {
	if w.step == StepFailed || w.step < to {
		w.step = to
	}
}

func (w *Wizard) findMethod(id string) *order.ShippingMethod {
	for i := range w.methods {
		if w.methods[i].ID == id {
			m := w.methods[i]
			return &m
		}
	}
	return nil
}
