package dispatch

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
)

// Prebuilt constraint constructors for the common declarative checks.
// Raw constraints run against the extracted string before coercion; typed
// constraints run against the coerced value.

// NotEmpty requires a non-empty raw value (after default substitution).
func NotEmpty() Constraint {
	return Constraint{
		Name:    "notEmpty",
		Message: "must not be empty",
		Raw:     func(s string) bool { return s != "" },
	}
}

// MinLength requires at least n characters.
func MinLength(n int) Constraint {
	return Constraint{
		Name:    "minLength",
		Message: fmt.Sprintf("must be at least %d characters", n),
		Raw:     func(s string) bool { return len(s) >= n },
	}
}

// MaxLength requires at most n characters.
func MaxLength(n int) Constraint {
	return Constraint{
		Name:    "maxLength",
		Message: fmt.Sprintf("must be at most %d characters", n),
		Raw:     func(s string) bool { return len(s) <= n },
	}
}

// Pattern requires the raw value to match the regular expression.
// The expression is compiled once at registration.
func Pattern(expr string) Constraint {
	re := regexp.MustCompile(expr)
	return Constraint{
		Name:    "pattern",
		Message: fmt.Sprintf("must match pattern %s", expr),
		Raw:     re.MatchString,
	}
}

// Enum requires the raw value to be one of the allowed strings.
func Enum(allowed ...string) Constraint {
	return Constraint{
		Name:    "enum",
		Message: fmt.Sprintf("must be one of [%s]", strings.Join(allowed, ",")),
		Raw:     func(s string) bool { return slices.Contains(allowed, s) },
	}
}

// Minimum requires a coerced numeric value of at least lower.
func Minimum(lower float64) Constraint {
	return Constraint{
		Name:    "minimum",
		Message: fmt.Sprintf("must be at least %v", lower),
		Typed: func(v any) bool {
			f, ok := asFloat64(v)
			return ok && f >= lower
		},
	}
}

// Maximum requires a coerced numeric value of at most upper.
func Maximum(upper float64) Constraint {
	return Constraint{
		Name:    "maximum",
		Message: fmt.Sprintf("must be at most %v", upper),
		Typed: func(v any) bool {
			f, ok := asFloat64(v)
			return ok && f <= upper
		},
	}
}

func asFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	//exhaustive:ignore
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
