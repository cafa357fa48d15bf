package attendance

import (
	"errors"
	"strings"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrDuplicateRoll   = errors.New("roll number already registered")
	errRequiredFields  = errors.New("please fill in all required fields")
)

// FieldError is used to indicate an error with a specific registration field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports rejected input; the store is left untouched.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	if len(err.Fields) == 0 {
		return err.Err.Error()
	}
	names := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		names = append(names, f.Field)
	}
	return err.Err.Error() + ": " + strings.Join(names, ", ")
}

func (err *ValidationError) Unwrap() error { return err.Err }

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
