// Package apperr defines the domain error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeOutOfStock         = "OUT_OF_STOCK"
	CodeInvalidCode        = "INVALID_CODE"
	CodeExpiredCode        = "EXPIRED_CODE"
	CodeEmptyCart          = "EMPTY_CART"
	CodeStockConflict      = "STOCK_CONFLICT"
	CodeValidation         = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeOrderLocked        = "ORDER_LOCKED"
	CodePaymentUnavailable = "PAYMENT_UNAVAILABLE"
	CodeCartChanged        = "CART_CHANGED"
	CodeCheckoutInFlight   = "CHECKOUT_IN_FLIGHT"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeDuplicate          = "DUPLICATE"
	CodeInternal           = "INTERNAL"
)

// Error is a failure the caller is allowed to see.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so sentinel-style comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

func NotFound(message string) *Error {
	return New(KindNotFound, CodeNotFound, message)
}

func Validation(message string, fields map[string]string) *Error {
	e := New(KindValidation, CodeValidation, message)
	e.Fields = fields
	return e
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, CodeForbidden, message)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, CodeRateLimited, message)
}

// Sentinels for errors.Is checks in callers and tests.
var (
	ErrNotFound      = NotFound("not found")
	ErrOutOfStock    = Conflict(CodeOutOfStock, "out of stock")
	ErrInvalidCode   = New(KindValidation, CodeInvalidCode, "invalid discount code")
	ErrExpiredCode   = New(KindValidation, CodeExpiredCode, "discount code has expired")
	ErrEmptyCart     = New(KindValidation, CodeEmptyCart, "cart is empty")
	ErrStockConflict = Conflict(CodeStockConflict, "not enough stock to complete the order")
	ErrCartChanged   = Conflict(CodeCartChanged, "cart changed, please review it again")
	ErrOrderLocked   = Conflict(CodeOrderLocked, "order can no longer be deleted")
)

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
