// Package apperr defines the error type surfaced to the UI layer.
package apperr

// Error couples a human-readable message with an underlying cause. The
// message is what the user sees; the cause is what gets logged.
type Error struct {
	Cause   error
	Message string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}

	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches a cause to a copy of the error, preserving the original
// for use with errors.Is.
func (e *Error) Wrap(cause error) *Error {
	return &Error{
		Message: e.Message,
		Cause:   cause,
	}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Message == t.Message
}
