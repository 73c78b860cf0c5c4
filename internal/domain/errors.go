package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by stores, tools and workers. Callers match with
// errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrPersistence        = errors.New("persistence failure")
)

var (
	ErrAlreadyCancelled = fmt.Errorf("already cancelled: %w", ErrInvalidState)
	ErrAlreadyInState   = fmt.Errorf("already in requested state: %w", ErrInvalidState)
	ErrInvalidAction    = fmt.Errorf("invalid action: %w", ErrInvalidArgument)
)

func invalidValue(field, value string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrInvalidArgument, field, value)
}
