package realtime

import "errors"

var (
	// ErrInvalidFrame is returned when an inbound frame has no event name
	// or is not valid JSON.
	ErrInvalidFrame = errors.New("invalid frame format")

	// ErrQueueFull means the outbound queue is full and the frame was dropped.
	ErrQueueFull = errors.New("outbound queue full")

	// ErrMissingToken is returned by the dialer when the token source
	// produced an empty credential.
	ErrMissingToken = errors.New("missing token")
)
