package forageable

import (
	"errors"
	"fmt"
)

// ErrorClass classifies failures so callers can decide how to surface them.
type ErrorClass string

const (
	// ErrorClassValidation means the caller supplied a record that breaks a
	// field rule. Nothing was submitted.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassSubmission means a mutation could not be queued.
	ErrorClassSubmission ErrorClass = "submission"

	// ErrorClassStorage means the storage gateway failed while running a
	// mutation or query.
	ErrorClassStorage ErrorClass = "storage"

	// ErrorClassCancelled means the owning scope ended before or while the
	// mutation ran.
	ErrorClassCancelled ErrorClass = "cancelled"

	// ErrorClassNotFound means a snapshot read found no matching record.
	ErrorClassNotFound ErrorClass = "not_found"
)

// Sentinel errors.
var (
	ErrInvalidEntry = errors.New("name and address must not be blank")
	ErrNotFound     = errors.New("forageable not found")
)

// Error is a classified error with the operation and record it concerns.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Op is the operation being performed, e.g. "insert".
	Op string `json:"op,omitempty"`

	// ID is the record ID involved, zero when not yet assigned.
	ID int64 `json:"id,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Op != "" {
		msg += fmt.Sprintf(" (op=%s", e.Op)
		if e.ID != 0 {
			msg += fmt.Sprintf(", id=%d", e.ID)
		}
		msg += ")"
	} else if e.ID != 0 {
		msg += fmt.Sprintf(" (id=%d)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithID adds record context to an error.
func (e *Error) WithID(id int64) *Error {
	e.ID = id
	return e
}

func newError(class ErrorClass, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return newError(ErrorClassValidation, message, err)
}

// NewSubmissionError creates a new submission error.
func NewSubmissionError(message string, err error) *Error {
	return newError(ErrorClassSubmission, message, err)
}

// NewStorageError creates a new storage error.
func NewStorageError(message string, err error) *Error {
	return newError(ErrorClassStorage, message, err)
}

// NewCancelledError creates a new cancelled error.
func NewCancelledError(message string, err error) *Error {
	return newError(ErrorClassCancelled, message, err)
}

// NewNotFoundError creates a new not-found error wrapping ErrNotFound.
func NewNotFoundError(id int64) *Error {
	return newError(ErrorClassNotFound, "no forageable with that id", ErrNotFound).WithID(id)
}

// ClassOf returns the class of err, or "" when err is not classified.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return ClassOf(err) == ErrorClassValidation
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return ClassOf(err) == ErrorClassNotFound
}

// IsCancelled returns true if the error is classified as cancelled.
func IsCancelled(err error) bool {
	return ClassOf(err) == ErrorClassCancelled
}
