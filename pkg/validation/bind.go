package validation

import (
	"errors"

	"github.com/example/storefront/pkg/apperr"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds the JSON body into out and validates it. Failures
// come back as VALIDATION_FAILED errors for the handler to render.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apperr.Validation("invalid request body", map[string]string{"body": err.Error()})
	}
	return Struct(v, out)
}

// Struct validates s and converts failures to a VALIDATION_FAILED error.
func Struct(v *validatorv10.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Validation("invalid request", map[string]string{"error": err.Error()})
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fieldPath(fe)] = fe.Tag()
	}
	return apperr.Validation("validation failed", fields)
}

// fieldPath drops the root struct name: "Request.address.city" -> "address.city".
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}
