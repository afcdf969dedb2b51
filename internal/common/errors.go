package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInvalidMediaRequest = fmt.Errorf("invalid media request: %w", ErrValidation)
	ErrQuotaExceeded       = errors.New("pending post quota exceeded")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state for operation")
	ErrTransientPlatform   = errors.New("transient platform error")
	ErrTerminalPlatform    = errors.New("terminal platform error")
	ErrStorage             = errors.New("storage error")
)

// Validation builds an error that matches ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidMedia builds an error that matches both ErrInvalidMediaRequest and ErrValidation.
func InvalidMedia(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMediaRequest, fmt.Sprintf(format, args...))
}

func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientPlatform, err)
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTerminalPlatform, err)
}

func Storage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// RateLimitError is returned when a caller exhausts its request window.
type RateLimitError struct {
	RetryAfter time.Duration
	Limit      int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// IsRetryable reports whether a platform error should be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientPlatform)
}
