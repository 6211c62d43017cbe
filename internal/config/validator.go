package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers net-relay-specific validation rules.
// Must be called before validating a Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_or_cidr", validateIPOrCIDR); err != nil {
		return fmt.Errorf("failed to register ip_or_cidr validator: %w", err)
	}
	return nil
}

// validateIPOrCIDR accepts either a bare IP literal or a "prefix/xx" pattern.
// It intentionally does not require the prefix to parse as numeric CIDR:
// the match rule treats "/" patterns as textual prefix matches, not
// parsed CIDR blocks, so the validator only rejects empty strings.
func validateIPOrCIDR(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateUniqueUsernames(); err != nil {
		return err
	}

	for _, ip := range c.AccessControl.IPWhitelist {
		if err := requireIPOrCIDR("access_control.ip_whitelist", ip); err != nil {
			return err
		}
	}
	for _, ip := range c.AccessControl.IPBlacklist {
		if err := requireIPOrCIDR("access_control.ip_blacklist", ip); err != nil {
			return err
		}
	}

	return nil
}

func requireIPOrCIDR(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s: entries must not be empty", field)
	}
	return nil
}

// validateUniqueUsernames enforces that Username is unique across the user
// list: at most one User per username.
func (c *Config) validateUniqueUsernames() error {
	seen := make(map[string]struct{}, len(c.Security.Users))
	for _, u := range c.Security.Users {
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("security.users: duplicate username %q", u.Username)
		}
		seen[u.Username] = struct{}{}
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "ip_or_cidr":
		return fmt.Sprintf("%s must be an IP literal or prefix/xx pattern", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
