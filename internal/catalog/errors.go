package catalog

import "errors"

// ErrNoVID means the catalog has no vehicle matching the selection. It is a
// legitimate outcome, not a fault: retrying the same selection will not
// change it, the caller has to adjust the selection instead.
var ErrNoVID = errors.New("no vehicle matches the selection")

// TransientError wraps failures that are expected to succeed on retry, such
// as a crashed browser session or a navigation that never completed. It is
// deliberately distinct from ErrNoVID so callers never retry a definitive
// not-found and never treat a crash as one.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient resolution failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
