package core

import "fmt"

// ErrorCode identifies a stable error class that callers can match on
// independent of message wording.
type ErrorCode int

const (
	// ErrCodeNonConvergentPlan is returned when scheduling resolves a plan
	// whose final destination set is not the local node alone.
	ErrCodeNonConvergentPlan ErrorCode = 31
)

// Error is a coded engine error.
type Error struct {
	Code    ErrorCode
	Message string
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// ErrNonConvergentPlan creates the scheduling error for a plan whose
// outermost exchange does not converge on the local node.
func ErrNonConvergentPlan() *Error {
	return NewError(ErrCodeNonConvergentPlan, "The final exchange plan must be convergent")
}
