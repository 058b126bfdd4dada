package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrRejected        = errors.New("query rejected by gatekeeper")
	ErrInvalidQuestion = errors.New("invalid question")
	ErrNotFound        = errors.New("not found")
)

// RejectionError carries the reason a query was refused.
type RejectionError struct {
	Reason  Reason
	Preview string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// RejectionReason extracts the gatekeeper reason from err, if any.
func RejectionReason(err error) (Reason, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
