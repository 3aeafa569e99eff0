package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/filepipe/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report the query or form name instead of the Go field name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "form", "json"} {
			if name := strings.Split(f.Tag.Get(tag), ",")[0]; name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ValidateRequest validates v with its struct tags. Failures are returned as
// a *domain.ValidationError for the first offending field.
func ValidateRequest(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Field(), tagMessage(fe))
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

// tagMessage maps validation tags to user-facing messages.
func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "is too long"
	case "min":
		return "is too short"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "oneof":
		return "must be one of " + fe.Param()
	case "excludesall":
		return "contains forbidden characters"
	default:
		return "is invalid"
	}
}
