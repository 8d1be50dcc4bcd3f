package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrClaimConflict is returned when a conditional status update loses a
	// race against another writer; losing a claim is benign, not a failure
	ErrClaimConflict = errors.New("job claim conflict")

	// ErrInvalidMessage is returned when a queue payload cannot be decoded
	// into a work message
	ErrInvalidMessage = errors.New("invalid work message")

	// ErrUnsupportedFormat is returned for uploads whose extension is neither
	// a known audio nor video format
	ErrUnsupportedFormat = errors.New("unsupported media format")
)

// TransientError wraps failures that should trigger queue redelivery
// (rate limits, timeouts, network errors).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
