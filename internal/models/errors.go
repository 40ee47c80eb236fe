package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrJobAlreadyRunning = errors.New("job already running for campaign")
)

// ValidationError is returned for bad campaign or segment fields.
// Nothing is persisted when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// ResolutionError means the audience could not be read from the directory
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return "audience resolution failed: " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TransitionError wraps ErrInvalidTransition with the attempted change
func TransitionError(from, to CampaignStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsResolution reports whether err is (or wraps) a ResolutionError
func IsResolution(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
