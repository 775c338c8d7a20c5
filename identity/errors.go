package identity

import (
	"errors"
	"sort"
	"strings"
)

// Failure taxonomy shared by the client and server. Callers match with errors.Is.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrValidationFailed     = errors.New("validation failed")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrRefreshFailed        = errors.New("refresh failed")
	ErrNetwork              = errors.New("network error")
)

// ValidationError carries per-field messages for registration and reset input.
type ValidationError struct {
	Message     string
	FieldErrors map[string]string
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, FieldErrors: make(map[string]string)}
}

// Add records the first message reported for field.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; !exists {
		v.FieldErrors[field] = message
	}
}

func (v *ValidationError) HasErrors() bool {
	return len(v.FieldErrors) > 0
}

// ErrOrNil returns v as an error only when a field error was recorded.
func (v *ValidationError) ErrOrNil() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	msg := v.Message
	if msg == "" {
		msg = ErrValidationFailed.Error()
	}
	if len(v.FieldErrors) == 0 {
		return msg
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return msg + ": " + strings.Join(fields, ", ")
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
