package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request rejected because a field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
