package core

import "strings"

// FieldError describes one field that failed validation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	err    error
}

// ValidationError is returned when a transaction cannot be created from the
// given input. It lists every failing field, never just the first.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError reports a single failing field. The ledger uses it for
// checks that depend on stored state rather than on the input alone.
func NewValidationError(field string, err error) *ValidationError {
	var verr ValidationError
	verr.add(field, err)
	return &verr
}

func (e *ValidationError) add(field string, err error) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: err.Error(), err: err})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid transaction: " + strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel errors so errors.Is(err, ErrEmptyTitle) works.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.err != nil {
			errs = append(errs, f.err)
		}
	}
	return errs
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
