// Package taverr defines the error taxonomy shared across services.
// Corruption and legacy-data conditions are deliberately absent: those are
// warnings carried on the notification side channel, not errors.
package taverr

import "errors"

var (
	// ErrNotFound marks a missing chat, character, note or message.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidOperation marks a structurally impossible request, such as
	// regenerating a non-assistant message or forking without a fork point.
	ErrInvalidOperation = errors.New("invalid operation")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidOperation reports whether err wraps ErrInvalidOperation.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}
