package payment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrDuplicateTicketNumber = errors.New("ticket number already in use")
	ErrMonthAlreadyRecorded  = errors.New("payment already recorded for month")
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError is returned before any store call when a request is
// malformed. errors.Is(err, ErrInvalidInput) holds for it.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalidField(field, rule string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Rule: rule}}}
}
