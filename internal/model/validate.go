package model

import (
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether there is an error on the named field.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// ValidateRequired checks that every required column has a value in values.
// The primary-key column is skipped since new rows get their key from the
// server. When columns is empty the Required flags on fields are used.
// Returns a *ValidationError on failure, nil on success.
func ValidateRequired(values map[string]any, fields *Fields, columns []ColumnModel, idName string) error {
	var ve ValidationError

	if len(columns) > 0 {
		for _, c := range columns {
			if !c.Required || c.DataIndex == idName {
				continue
			}
			if IsBlank(values[c.DataIndex]) {
				ve.Errors = append(ve.Errors, FieldError{Field: c.DataIndex, Message: "is required"})
			}
		}
	} else {
		for _, f := range fields.All() {
			if !f.Required || f.Name == idName {
				continue
			}
			if IsBlank(values[f.Name]) {
				ve.Errors = append(ve.Errors, FieldError{Field: f.Name, Message: "is required"})
			}
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ConvertValues converts each entry of raw using the matching FieldMeta.
// Known fields land in the first map, unknown ones are copied unchanged into
// the second. Conversion failures are collected into a *ValidationError.
func ConvertValues(raw map[string]any, fields *Fields) (map[string]any, map[string]any, error) {
	known := make(map[string]any, len(raw))
	var extra map[string]any
	var ve ValidationError

	for name, v := range raw {
		meta := fields.Get(name)
		if meta == nil {
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[name] = v
			continue
		}
		cv, err := meta.Convert(v)
		if err != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: name, Message: err.Error()})
			continue
		}
		known[name] = cv
	}

	if ve.HasErrors() {
		return known, extra, &ve
	}
	return known, extra, nil
}
