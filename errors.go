package guard

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable reason attached to a rejected operation.
type ErrorCode string

const (
	CodeSelfReference   ErrorCode = "self_reference"
	CodeCycle           ErrorCode = "cycle_detected"
	CodeChildLimit      ErrorCode = "child_limit_exceeded"
	CodePermissionLimit ErrorCode = "permission_limit_exceeded"
	CodeKindMismatch    ErrorCode = "kind_mismatch"
	CodeAlreadyParented ErrorCode = "already_parented"

	CodeEntityNotFound ErrorCode = "entity_not_found"
	CodeInvalidPattern ErrorCode = "invalid_uri_pattern"
	CodeMissingField   ErrorCode = "missing_required_field"
	CodeInvalidValue   ErrorCode = "invalid_value"
)

// StructuralError reports a rejected graph mutation (self-reference, cycle,
// relationship limit). The graph is left unchanged whenever one is returned.
type StructuralError struct {
	Code ErrorCode
	Msg  string
}

func (e *StructuralError) Error() string { return string(e.Code) + ": " + e.Msg }

// ValidationError reports malformed input caught at the mutation boundary.
type ValidationError struct {
	Code ErrorCode
	Msg  string
}

func (e *ValidationError) Error() string { return string(e.Code) + ": " + e.Msg }

func structuralf(code ErrorCode, format string, args ...any) error {
	return &StructuralError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func validationf(code ErrorCode, format string, args ...any) error {
	return &ValidationError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// IsStructural reports whether err is a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CodeOf extracts the reason code from a rejected operation, or "" when the
// error carries none.
func CodeOf(err error) ErrorCode {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
