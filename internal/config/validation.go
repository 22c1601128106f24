package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate validates the configuration using struct tags and the rules
// that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Load.Op == "copy" && cfg.Load.SrcPath == "" && cfg.Store.Path == "" {
		return fmt.Errorf("load: copy needs src_path or a store to read items from")
	}
	if cfg.Load.Op == "copy" && cfg.Load.SrcPath != "" && cfg.Load.SrcPath == cfg.Load.DstPath {
		return fmt.Errorf("load: copy src_path and dst_path are both %q", cfg.Load.SrcPath)
	}
	if cfg.Load.InputSize > 0 && cfg.Load.InputSize%8 != 0 {
		return fmt.Errorf("load.input_size: %d is not a multiple of 8", cfg.Load.InputSize)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics: enabled without a listen address")
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
