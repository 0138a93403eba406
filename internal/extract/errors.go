package extract

import (
	"errors"
	"fmt"
)

// Reason explains a permanent extraction failure
type Reason string

const (
	ReasonRemoved       Reason = "removed"
	ReasonPrivate       Reason = "private"
	ReasonLoginRequired Reason = "login_required"
	ReasonUnknown       Reason = "unknown"
)

// ErrEmptyResult is returned when the extractor finished without producing
// a non-empty file.
var ErrEmptyResult = errors.New("extractor produced no audio")

// TransientError marks failures that may succeed when retried unchanged
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient extraction error"
	}
	return "transient extraction error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks failures that retrying cannot fix
type PermanentError struct {
	Reason Reason
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permanent extraction error (%s)", e.Reason)
	}
	return fmt.Sprintf("permanent extraction error (%s): %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError
func Transient(err error) error {
	return &TransientError{Err: err}
}

// Permanent wraps err as a PermanentError with the given reason
func Permanent(reason Reason, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// IsTransient reports whether err is, or wraps, a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// AsPermanent returns the PermanentError in err's chain, if any
func AsPermanent(err error) (*PermanentError, bool) {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
