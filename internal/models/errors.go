package models

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when a caller supplies a date range whose start
// is after its end, or a region filter that does not apply to the family.
var ErrInvalidRange = errors.New("invalid query range")

// RejectReason classifies why the validation pipeline dropped a row.
type RejectReason string

const (
	ReasonInvalidTimestamp RejectReason = "invalid_timestamp"
	ReasonRangeViolation   RejectReason = "range_violation"
)

// Rejection pairs a dropped row with the reason it was dropped. Rejected rows
// are counted and logged, never persisted.
type Rejection struct {
	Row    CanonicalRow
	Reason RejectReason
}

// SourceUnavailableError marks a recoverable provider failure (network,
// rate-limit, malformed payload). It aborts the refresh of one family only.
type SourceUnavailableError struct {
	Family Family
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for %s: %v", e.Family, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// SourceUnavailable wraps err as a SourceUnavailableError for the family.
func SourceUnavailable(f Family, err error) error {
	return &SourceUnavailableError{Family: f, Err: err}
}

// IsSourceUnavailable reports whether err is a per-family source failure.
func IsSourceUnavailable(err error) bool {
	var su *SourceUnavailableError
	return errors.As(err, &su)
}
