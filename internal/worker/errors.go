package worker

import "errors"

// ScanError marks whether a failed message is worth another delivery.
type ScanError struct {
	Err       error
	Retryable bool
}

func (e *ScanError) Error() string {
	return e.Err.Error()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) *ScanError {
	return &ScanError{Err: err, Retryable: true}
}

func NewFatalError(err error) *ScanError {
	return &ScanError{Err: err, Retryable: false}
}

// IsRetryable treats unclassified errors as retryable.
func IsRetryable(err error) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}
