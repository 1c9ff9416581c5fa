package models

import (
	"errors"
	"fmt"
)

var (
	ErrTransientFetch      = errors.New("transient fetch failure")
	ErrRenderTimeout       = errors.New("render timeout")
	ErrListingGone         = errors.New("listing removed")
	ErrPhoneUnavailable    = errors.New("phone number unavailable")
	ErrDuplicateListing    = errors.New("listing already stored")
	ErrStorageConnectivity = errors.New("storage unreachable")
)

// ExtractionError reports a required element that was missing or malformed.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("extract %s: element not found", e.Field)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// MissingField builds an ExtractionError for an absent element.
func MissingField(field string) error {
	return &ExtractionError{Field: field}
}
