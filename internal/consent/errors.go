package consent

import "errors"

var (
	// ErrInvalidPayload is returned when a consent submission is malformed.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrStorageFailure is returned when a well-formed record could not be persisted.
	ErrStorageFailure = errors.New("storage failure")
)
