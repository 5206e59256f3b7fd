package domain

import (
	"errors"
	"strings"
)

// Kind classifies a failure for the transport layer.
type Kind string

const (
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindInvalidCredential Kind = "invalid_credential"
	KindInvalidToken      Kind = "invalid_token"
	KindInvalidOrExpired  Kind = "invalid_or_expired"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

// Account errors
var (
	ErrAccountNotFound       = errors.New("user not found")
	ErrAccountAlreadyExists  = errors.New("user already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidCredentials    = errors.New("invalid password")
)

// Token and code errors
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired OTP")
)

// KindOf maps err onto the taxonomy. Unknown errors are Internal; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrAccountAlreadyExists), errors.Is(err, ErrUsernameAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredential
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrInvalidOrExpiredCode):
		return KindInvalidOrExpired
	default:
		return KindInternal
	}
}

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input as a list of field messages.
type ValidationError struct {
	Fields []FieldError
}

// Add records a message for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// AddError records err's message for field when err is non-nil.
func (e *ValidationError) AddError(field string, err error) {
	if err != nil {
		e.Add(field, err.Error())
	}
}

// Err returns e if any field failed, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError returns a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}
