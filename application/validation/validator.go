// Package validation checks struct-tag constraints on plugin and host
// configuration using go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/domain/ports"
)

// StructValidator implements ConfigValidator. Errors are reported with the
// field's serialized name so they match what the user wrote in the file.
type StructValidator struct {
	validate *validator.Validate
}

// NewStructValidator creates a validator keyed on json/yaml/toml tag names.
func NewStructValidator() ports.ConfigValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "yaml", "toml"} {
			name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return &StructValidator{validate: v}
}

// Validate returns a *errors.ConfigError naming the first failing field.
func (s *StructValidator) Validate(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domainerrors.ConfigError{Err: err}
	}

	fe := verrs[0]
	return &domainerrors.ConfigError{
		Field: fe.Field(),
		Err:   fmt.Errorf("value %v fails %q constraint %s", fe.Value(), fe.Tag(), fe.Param()),
	}
}
