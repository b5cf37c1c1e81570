package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so the sentinels below
// work with errors.Is regardless of message or wrapping depth.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Specification errors, raised while a model is being built.
	CodeDuplicateParameter  = "DUPLICATE_PARAMETER"
	CodeInvalidBounds       = "INVALID_BOUNDS"
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeNotIdentified       = "NOT_IDENTIFIED"

	// Data errors, raised at the first offending record.
	CodeDataInvalid             = "DATA_INVALID"
	CodeNoAvailableAlternatives = "NO_AVAILABLE_ALTERNATIVES"
	CodeChosenNotAvailable      = "CHOSEN_NOT_AVAILABLE"

	// Numerical conditions.
	CodeNonFiniteLikelihood = "NON_FINITE_LIKELIHOOD"
	CodeNonConvergence      = "NON_CONVERGENCE"
	CodeSingularHessian     = "SINGULAR_HESSIAN"
	CodeNotPositiveDefinite = "NOT_POSITIVE_DEFINITE"
	CodeCanceled            = "CANCELED"
)

// Sentinels for errors.Is checks.
var (
	ErrDuplicateParameter      = New(CodeDuplicateParameter, "duplicate parameter")
	ErrInvalidBounds           = New(CodeInvalidBounds, "invalid parameter bounds")
	ErrUnresolvedReference     = New(CodeUnresolvedReference, "unresolved reference")
	ErrNotIdentified           = New(CodeNotIdentified, "model not identified")
	ErrDataInvalid             = New(CodeDataInvalid, "invalid data")
	ErrNoAvailableAlternatives = New(CodeNoAvailableAlternatives, "no available alternatives")
	ErrChosenNotAvailable      = New(CodeChosenNotAvailable, "chosen alternative not available")
	ErrNonFiniteLikelihood     = New(CodeNonFiniteLikelihood, "non-finite log-likelihood")
	ErrNonConvergence          = New(CodeNonConvergence, "optimizer did not converge")
	ErrSingularHessian         = New(CodeSingularHessian, "singular hessian")
	ErrCanceled                = New(CodeCanceled, "estimation canceled")
	ErrNotFound                = New(CodeNotFound, "not found")
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// DataError reports a bad record with its individual id and occasion index.
// cause may be nil or one of the sentinels above.
func DataError(cause error, individual string, occasion int, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    CodeDataInvalid,
		Message: fmt.Sprintf("individual %q occasion %d: %s", individual, occasion, fmt.Sprintf(format, args...)),
		Cause:   cause,
	}
}
