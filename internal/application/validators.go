package application

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/ahrav/questlog/internal/domain"
)

// quarterPattern matches quarter labels such as "Q3 2025".
var quarterPattern = regexp.MustCompile(`^Q[1-4] \d{4}$`)

// cronParser accepts standard five-field specs and descriptors like
// "@every 5m".
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// sharedValidator is built once; validator.Validate caches struct metadata
// and is safe for concurrent use.
var sharedValidator = sync.OnceValues(newValidator)

// newValidator creates a validator with the service's custom rules and
// reports field names by their yaml or json tag.
func newValidator() (*validator.Validate, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return v, nil
}

// registerCustomValidators adds the service-specific validation tags.
func registerCustomValidators(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"quarter":     validateQuarter,
		"retrypolicy": validateRetryPolicy,
		"cronspec":    validateCronSpec,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateQuarter checks for a "Q{1-4} {yyyy}" label.
func validateQuarter(fl validator.FieldLevel) bool {
	return quarterPattern.MatchString(fl.Field().String())
}

// validateRetryPolicy checks for a known retry policy name.
func validateRetryPolicy(fl validator.FieldLevel) bool {
	_, err := domain.ParseRetryPolicy(fl.Field().String())
	return err == nil
}

// validateCronSpec checks that the value parses as a cron schedule.
func validateCronSpec(fl validator.FieldLevel) bool {
	_, err := cronParser.Parse(fl.Field().String())
	return err == nil
}

// validateInput validates a request struct and converts failures into a
// domain.ValidationError for the given entity.
func validateInput(entity string, input any) error {
	v, err := sharedValidator()
	if err != nil {
		return err
	}

	err = v.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", entity, err)
	}

	verr := domain.NewValidationError(entity)
	for _, fe := range fieldErrs {
		verr.AddError(describeFieldError(fe))
	}
	return verr
}

// describeFieldError renders a single validation failure for API clients.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "quarter":
		return fe.Field() + ` must look like "Q3 2025"`
	case "uuid":
		return fe.Field() + " must be a valid id"
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
