package realtime

import (
	"encoding/json"
	"time"
)

// Frame is the wire envelope for every message on the realtime connection.
// Event names are the only interface surface; payloads are feature-defined JSON.
type Frame struct {
	Event     string          `json:"event"`
	Room      string          `json:"room,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

// NewFrame builds a frame with a marshaled payload. A nil payload is allowed
// for control frames such as room joins.
func NewFrame(event string, payload any) (*Frame, error) {
	f := &Frame{Event: event, Timestamp: time.Now()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = data
	}
	return f, nil
}

// Encode converts the frame to JSON bytes.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses a frame from JSON bytes.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Event == "" {
		return nil, ErrInvalidFrame
	}
	return &f, nil
}

// Event is what subscribers receive: the frame with its payload still raw,
// for the handler to decode into its feature-specific shape.
type Event struct {
	Name    string
	Room    string
	Ref     string
	Payload json.RawMessage
}

// Handler is a subscriber callback. Handlers run on the receive path; a
// panicking handler is isolated and logged, siblings still run.
type Handler func(Event)
