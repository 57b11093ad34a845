package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rewardbridge/internal/types"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects every field error of a request.
type ValidationResult struct {
	Errors []ValidationError
}

func (r ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

// Validator wraps go-playground/validator for request DTOs. Field names in
// errors follow the json tags.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{validate: v, logger: logger}
}

// Check validates s and collects field errors.
func (v *Validator) Check(s any) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Warn("validator misuse", "error", err)
		return ValidationResult{Errors: []ValidationError{{Field: "", Code: "invalid", Message: err.Error()}}}
	}
	out := ValidationResult{Errors: make([]ValidationError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// ValidateStruct returns a validation AppError carrying every field error,
// or nil. A missing required field maps to validation_missing_required_field.
func (v *Validator) ValidateStruct(s any) error {
	res := v.Check(s)
	if res.IsValid() {
		return nil
	}
	code := types.ErrCodeValidationInvalidPayload
	for _, e := range res.Errors {
		if e.Code == "required" {
			code = types.ErrCodeValidationMissingField
			break
		}
	}
	return types.NewAppErrorWithDetails(code, res.Errors[0].Message, nil,
		map[string]any{"fields": res.Errors})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
