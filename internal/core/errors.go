package core

import (
	"errors"
	"fmt"
)

// Error kinds raised by the settlement core. Handlers map these onto HTTP
// status codes; everything else bubbles up as an internal error.
var (
	ErrValidation = errors.New("validation error")
	ErrImbalance  = errors.New("imbalance error")
	ErrState      = errors.New("state error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Imbalancef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrImbalance, fmt.Sprintf(format, args...))
}

func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
