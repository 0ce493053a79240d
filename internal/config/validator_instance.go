package config

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	// RFC 1123 labels joined by dots, at least one dot so bare hostnames
	// are rejected before they reach certbot.
	dnsNamePattern  = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)
	unitNamePattern = regexp.MustCompile(`^[a-zA-Z0-9:_.\\-]+\.(service|socket|timer)$`)
)

// validatorInstance configures and returns the shared validator used across
// the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("dnsname", func(fl validator.FieldLevel) bool {
			return dnsNamePattern.MatchString(strings.ToLower(fl.Field().String()))
		})

		_ = v.RegisterValidation("unitname", func(fl validator.FieldLevel) bool {
			return unitNamePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// Validate runs struct validation over a loaded Config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return relayerrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return relayerrors.NewValidationError(first.Namespace(), "failed "+first.Tag()+" constraint", err)
		}
		return relayerrors.NewValidationError("config", err.Error(), err)
	}

	return nil
}
