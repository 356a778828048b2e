package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks every error that must abort startup.
var ErrConfiguration = errors.New("configuration error")

// ConfigError describes one missing or invalid configuration value.
// errors.Is(err, ErrConfiguration) holds for every ConfigError.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

// NewError returns a ConfigError for key.
func NewError(key, reason string) *ConfigError {
	return &ConfigError{Key: key, Reason: reason}
}

// WrapError returns a ConfigError for key caused by err.
func WrapError(key, reason string, err error) *ConfigError {
	return &ConfigError{Key: key, Reason: reason, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
