package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"lotauction/internal/domain"
)

var (
	reAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	reID      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reDest    = regexp.MustCompile(`^[A-Za-z_]{2,16}$`)
	reRef     = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	// report fields by their JSON names
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = val.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return reAddress.MatchString(fl.Field().String())
	})
	_ = val.RegisterValidation("destination", func(fl validator.FieldLevel) bool {
		return reDest.MatchString(fl.Field().String())
	})
	_ = val.RegisterValidation("grade", func(fl validator.FieldLevel) bool {
		switch strings.ToUpper(strings.TrimSpace(fl.Field().String())) {
		case "A", "B", "C", "D":
			return true
		}
		return false
	})
	return val
}

// Struct runs the `validate` tags on s and folds every failure into one
// validation error with a reason per field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return domain.Validation("invalid request: %v", err)
	}
	reasons := make([]string, 0, len(ves))
	for _, fe := range ves {
		reasons = append(reasons, reason(fe))
	}
	return domain.ValidationReasons("invalid request", reasons)
}

// Fields lists the offending field names of a Struct error.
func Fields(err error) []string {
	var out []string
	for _, r := range domain.ReasonsOf(err) {
		out = append(out, strings.SplitN(r, ":", 2)[0])
	}
	return out
}

func reason(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return f + ": is required"
	case "address":
		return f + ": must be a 0x-prefixed 40 hex digit address"
	case "destination":
		return f + ": must be a destination code"
	case "grade":
		return f + ": must be one of A, B, C, D"
	case "min", "gte":
		return fmt.Sprintf("%s: must be at least %s", f, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s: must be at most %s", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of %s", f, fe.Param())
	}
	return f + ": is invalid (" + fe.Tag() + ")"
}

func Address(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reAddress.MatchString(s)
}

// ID validates a resource identifier taken from the path.
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// TxRef validates a ledger transaction reference.
func TxRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reRef.MatchString(s)
}

func Destination(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s, reDest.MatchString(s)
}

// Limit parses a page size, clamped to [1, 500]; empty or malformed means 100.
func Limit(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 100
	}
	if n > 500 {
		return 500
	} // clamp to avoid abuse
	return n
}
