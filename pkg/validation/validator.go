// Package validation configures request validation and maps its failures
// to VALIDATION_FAILED errors.
package validation

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)

// New returns a validator that reports fields by their JSON names and knows
// the card rules used at checkout.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("cardexpiry", validateExpiry)
	_ = v.RegisterValidation("cardnumber", validateCardNumber)
	return v
}

// validateExpiry accepts MM/YY for the current month or later.
func validateExpiry(fl validatorv10.FieldLevel) bool {
	return ExpiryValid(fl.Field().String(), time.Now())
}

func ExpiryValid(s string, now time.Time) bool {
	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	year += 2000
	if year != now.Year() {
		return year > now.Year()
	}
	return month >= int(now.Month())
}

// validateCardNumber checks length and the Luhn checksum, ignoring spaces.
func validateCardNumber(fl validatorv10.FieldLevel) bool {
	return CardNumberValid(fl.Field().String())
}

func CardNumberValid(s string) bool {
	digits := strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), "-", "")
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
