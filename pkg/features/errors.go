package features

import "errors"

var (
	// ErrInvalidInput is returned for an empty snapshot sequence, before any processing
	ErrInvalidInput = errors.New("invalid input: empty snapshot sequence")

	// ErrUnknownFormat marks a record whose snapshot could not be classified
	ErrUnknownFormat = errors.New("unknown format")

	// ErrMalformedSnapshot marks a record whose snapshot was missing or held no reports
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

var recordErrors = map[string]error{
	ErrUnknownFormat.Error():     ErrUnknownFormat,
	ErrMalformedSnapshot.Error(): ErrMalformedSnapshot,
}
