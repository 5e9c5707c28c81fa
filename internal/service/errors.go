package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrIdentityConflict = errors.New("identity already in use")
	ErrCodeNotFound     = errors.New("verification code not found")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrCodeConsumed     = errors.New("verification code already used")
	ErrResendThrottled  = errors.New("verification resend throttled")
)

// ValidationError carries every failed input check at once so clients can
// render inline form feedback. errors.Is(err, ErrInvalidInput) holds.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidInput, joinFields(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ConflictError lists exactly the colliding identity fields. Both the
// pre-insert check and a storage-level uniqueness loss produce this same
// shape. errors.Is(err, ErrIdentityConflict) holds.
type ConflictError struct {
	Fields map[string]string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s", ErrIdentityConflict, joinFields(e.Fields))
}

func (e *ConflictError) Unwrap() error {
	return ErrIdentityConflict
}

func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
