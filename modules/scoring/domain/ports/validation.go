package ports

import "errors"

// ValidationError rejects a malformed rule at create/update time. Code
// is a stable UPPER_SNAKE identifier callers can branch on.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Code + ": " + e.Message }

func NewValidationError(code string, message string) error {
	return &ValidationError{Code: code, Message: message}
}

func IsValidationError(err error) bool {
	_, ok := errors.AsType[*ValidationError](err)
	return ok
}

func ValidationCode(err error) string {
	if ve, ok := errors.AsType[*ValidationError](err); ok && ve != nil {
		return ve.Code
	}
	return ""
}
