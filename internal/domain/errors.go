package domain

import (
	"errors"
)

var (
	// Processing errors
	ErrInvalidFile     = errors.New("invalid file")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBadState        = errors.New("bad state")
	ErrNotImplemented  = errors.New("not implemented")
	ErrNotFound        = errors.New("not found")
	ErrSystemError     = errors.New("system error")
	ErrDatabaseError   = errors.New("database error")

	// Process errors
	ErrProcessNotFound    = errors.New("process not found")
	ErrStepNotFound       = errors.New("process step not found")
	ErrProcessNotRunnable = errors.New("process cannot be run in its current status")
)

// AskUIError interrupts processing when more information is needed from the user.
// It is not a failure: the process stores the element as its waiting directions.
type AskUIError struct {
	Element *Element
}

// AskUI wraps an element into an interrupt.
func AskUI(element *Element) *AskUIError {
	return &AskUIError{Element: element}
}

func (e *AskUIError) Error() string {
	return "need more information from UI"
}

// IsAskUI returns the interrupt carried by err, if any.
func IsAskUI(err error) (*AskUIError, bool) {
	var ask *AskUIError
	if errors.As(err, &ask) {
		return ask, true
	}
	return nil, false
}
