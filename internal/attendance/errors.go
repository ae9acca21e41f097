package attendance

import "errors"

var (
	// ErrInvalidStatus is returned when a mark uses an unknown status.
	ErrInvalidStatus = errors.New("invalid attendance status")

	// ErrMissingStudent is returned when a mark has no student id.
	ErrMissingStudent = errors.New("missing student id")
)
