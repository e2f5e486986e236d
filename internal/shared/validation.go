package shared

import (
	"strings"

	"github.com/finpilot/finpilot/internal/platform/httpx"
)

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field problem found in one input. It
// unwraps to httpx.ErrValidation so handlers map it to a 400.
type ValidationErrors []FieldError

// Add appends a field error.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Merge appends the errors of other, prefixing their field names.
func (v *ValidationErrors) Merge(prefix string, other ValidationErrors) {
	for _, fe := range other {
		field := fe.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		v.Add(field, fe.Message)
	}
}

// Has reports whether field was rejected.
func (v ValidationErrors) Has(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when no errors were collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return httpx.ErrValidation
}

// Fields returns the errors keyed by field for problem responses.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, fe := range v {
		if _, exists := out[fe.Field]; !exists {
			out[fe.Field] = fe.Message
		}
	}
	return out
}
