package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json name so messages match the request body.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateStruct validates i against its `validate` tags and returns the first failure.
func ValidateStruct(i any) error {
	err := validate.Struct(i)
	if err == nil {
		return nil
	}

	var verr validator.ValidationErrors
	if !errors.As(err, &verr) {
		return fmt.Errorf("validation error: %w", err)
	}

	if len(verr) == 0 {
		return nil
	}

	firstError := verr[0]

	if firstError.Tag() == "required" {
		return fmt.Errorf("field %s is required", firstError.Field())
	}

	return fmt.Errorf("field %s requires %s", firstError.Field(), strings.TrimSpace(firstError.Tag()+" "+firstError.Param()))
}
