package attendance

import (
	"context"
	"time"
)

// Valid marking statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

// Record is one attendance mark as held in feature state. Pending is true
// from the optimistic insert until the mark is validated or rejected.
type Record struct {
	ID        string
	SessionID string
	StudentID string
	Status    string
	MarkedAt  time.Time
	Pending   bool
}

// recordWire is the shape shared by attendance events and the persistence API.
type recordWire struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Status    string    `json:"status"`
	MarkedAt  time.Time `json:"marked_at"`

	// Set on attendance:marked echoes: the server's validation verdict.
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func (w recordWire) toRecord() Record {
	return Record{
		ID:        w.ID,
		SessionID: w.SessionID,
		StudentID: w.StudentID,
		Status:    w.Status,
		MarkedAt:  w.MarkedAt,
	}
}

// markRequest is the durable write issued alongside the emitted event.
type markRequest struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
	ClientRef string `json:"client_ref"`
}

// Poster is the slice of the durable client this feature needs.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}
