package checkout

import (
	"context"

	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Request carries every checkout step in one submission.
type Request struct {
	Contact
	ShippingMethod string  `json:"shippingMethod"`
	Payment        Payment `json:"payment"`
}

// Service runs a full wizard pass for each submitted checkout.
type Service struct {
	placer   Placer
	methods  []order.ShippingMethod
	validate *validatorv10.Validate
	opts     Options
}

func NewService(placer Placer, methods []order.ShippingMethod, v *validatorv10.Validate, opts Options) *Service {
	return &Service{placer: placer, methods: methods, validate: v, opts: opts}
}

// ShippingMethods lists the options offered at the shipping step.
func (s *Service) ShippingMethods() []order.ShippingMethod {
	return s.methods
}

func (s *Service) Checkout(ctx context.Context, identity cart.Identity, req Request) (*models.Order, error) {
	w := NewWizard(identity, s.methods, s.validate, s.opts)
	if err := w.SetAddress(req.Contact); err != nil {
		return nil, err
	}
	if err := w.SelectShipping(req.ShippingMethod); err != nil {
		return nil, err
	}
	if err := w.SelectPayment(req.Payment); err != nil {
		return nil, err
	}
	if err := w.Review(); err != nil {
		return nil, err
	}
	return w.Place(ctx, s.placer)
}
