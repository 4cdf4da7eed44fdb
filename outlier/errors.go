package outlier

import (
	"fmt"

	"github.com/pkg/errors"
)

// A ConfigurationError is returned when filter parameters or the worker count are invalid. It is
// always reported before any work starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %q %s", e.Field, e.Reason)
}

// NewConfigurationError returns a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns whether or not an error is a ConfigurationError, at any depth of
// wrapping.
func IsConfigurationError(err error) bool {
	var errArt *ConfigurationError
	return errors.As(err, &errArt)
}
