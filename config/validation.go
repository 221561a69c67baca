package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints, then cross-field rules the tags cannot express.
// Every problem is reported as a *ConfigError; several are joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return NewMissingFieldError("config", EnvPrefix+"*", "config.yaml")
	}

	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	for i, p := range cfg.Retry.Policies {
		if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
			errs = append(errs, NewInvalidFieldError(
				fmt.Sprintf("retry.policies[%d].maxdelay", i),
				"must not be lower than basedelay", nil))
		}
		if p.Type == PolicyComputed && p.MaxRetries == 0 {
			errs = append(errs, NewInvalidFieldError(
				fmt.Sprintf("retry.policies[%d].maxretries", i),
				"computed policy never retries with maxretries 0", nil))
		}
	}

	obs := cfg.Observability
	obs.ApplyDefaults()
	if err := obs.Validate(); err != nil {
		errs = append(errs, &ConfigError{Category: "invalid", Field: "observability", Message: err.Error()})
	}

	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) *ConfigError {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_if":
		return NewMissingFieldError(field, envVarFor(field), field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %v", fe.Value()), strings.Fields(fe.Param()))
	case "url":
		return NewInvalidFieldError(field, "must be an absolute url", nil)
	default:
		return NewInvalidFieldError(field, fmt.Sprintf("failed %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value()), nil)
	}
}
