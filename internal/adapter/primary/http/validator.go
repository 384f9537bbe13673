package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RequestValidator adapts validator/v10 to echo.Validator
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a validator that reports json field names
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// Validate implements echo.Validator
func (v *RequestValidator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &fieldError{field: fe.Field(), tag: fe.Tag(), param: fe.Param()}
	}
	return err
}

type fieldError struct {
	field string
	tag   string
	param string
}

func (e *fieldError) Error() string {
	switch e.tag {
	case "required":
		return fmt.Sprintf("%s is required", e.field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.field, e.param)
	}
	return fmt.Sprintf("%s is invalid", e.field)
}
