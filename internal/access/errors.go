package access

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("invalid request")
	ErrNotFound           = errors.New("object not found")
	ErrExpired            = errors.New("object has expired")
	ErrMFARequired        = errors.New("TOTP code required")
	ErrMFAInvalid         = errors.New("invalid TOTP code")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// MFAError is returned when a TOTP-protected object is read without a code.
// QR is set only until the object has been read successfully once.
type MFAError struct {
	QR string
}

func (e *MFAError) Error() string { return ErrMFARequired.Error() }

func (e *MFAError) Unwrap() error { return ErrMFARequired }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
