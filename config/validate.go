package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their yaml key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg against its `validate` tags and reports every failing key.
func Validate(cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %s", configKey(fe.Namespace()), strings.TrimSpace(fe.Tag()+" "+fe.Param())))
	}

	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// configKey turns a validator namespace such as "BaseConfig.server.port" into "server.port".
// Inline embedded structs have no yaml name and are dropped from the path.
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}

	keys := parts[:0]
	for _, p := range parts {
		if p != "" && p != "BaseConfig" {
			keys = append(keys, p)
		}
	}

	return strings.Join(keys, ".")
}
