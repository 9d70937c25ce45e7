package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/lupa/internal/model"
)

// validate is safe for concurrent use and caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRegistration checks a registration's struct tags and capability set
func ValidateRegistration(reg model.SourceRegistration) error {
	if err := validate.Struct(reg); err != nil {
		return fmt.Errorf("%w: %s: %s", model.ErrInvalidRegistration, reg.ID, describe(err))
	}
	for _, c := range reg.Capabilities {
		if !c.Valid() {
			return fmt.Errorf("%w: %s: unknown capability %q", model.ErrInvalidRegistration, reg.ID, c)
		}
	}
	return nil
}

// ValidateConfig checks the configuration struct tags
func ValidateConfig(cfg model.Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %s", describe(err))
	}
	return nil
}

// describe flattens validator errors into "Field: rule" pairs
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), rule))
	}
	return strings.Join(parts, "; ")
}
