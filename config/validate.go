package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var settingsValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report failures by environment key rather than Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return strings.ToUpper(name)
	})

	_ = v.RegisterValidation("database_url", func(fl validator.FieldLevel) bool {
		return SupportedDatabaseURL(fl.Field().String())
	})
	return v
}

// SupportedDatabaseURL reports whether raw names a driver the storage layer
// can open.
func SupportedDatabaseURL(raw string) bool {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || rest == "" {
		return false
	}
	// Driver suffixes such as postgresql+asyncpg name the same database.
	scheme, _, _ = strings.Cut(scheme, "+")
	switch strings.ToLower(scheme) {
	case "sqlite", "postgres", "postgresql":
		return true
	}
	return false
}

func validateSettings(s Settings) error {
	err := settingsValidator.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return WrapError("settings", "failed validation", err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, NewError(fe.Field(), describe(fe)))
	}
	return errors.Join(errs...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "endsnotwith":
		return fmt.Sprintf("must not end with %q", fe.Param())
	case "oneofci":
		return fmt.Sprintf("must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "database_url":
		return "must use the sqlite://, postgres:// or postgresql:// scheme"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
