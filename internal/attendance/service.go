package attendance

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"eduhub-realtime/internal/notice"
	"eduhub-realtime/internal/optimistic"
	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

// Service is the live attendance feature: a teacher marks students during a
// session; each mark is applied optimistically, emitted for other proctors,
// written durably, and rolled back with a notice when validation rejects it.
//
// Same four-state shape as messaging; only the validation predicate and the
// replacement rule differ.
type Service struct {
	bus     realtime.Bus
	api     Poster
	notices *notice.Center
	logger  log.Logger
	userID  string

	store *optimistic.Store[Record]

	mu       sync.Mutex
	onUpdate func()
	unsubs   []func()
}

func NewService(bus realtime.Bus, api Poster, notices *notice.Center, userID string, logger log.Logger) *Service {
	s := &Service{
		bus:     bus,
		api:     api,
		notices: notices,
		logger:  logger,
		userID:  userID,
		store: optimistic.New(optimistic.Config[Record]{
			Key: func(r Record) string { return r.ID },
			// A re-mark for the same record wins when it is newer.
			Supersede: func(local, remote Record) bool {
				return remote.MarkedAt.After(local.MarkedAt)
			},
		}),
	}
	s.unsubs = append(s.unsubs,
		bus.Subscribe(realtime.EventAttendanceMarked, s.handleMarked),
	)
	return s
}

// OnUpdate sets a redraw hook invoked whenever visible state changes.
func (s *Service) OnUpdate(fn func()) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// sessionRoom is the scoped topic all of a session's marks travel on.
func sessionRoom(sessionID string) string {
	return "attendance:" + sessionID
}

// Watch joins the session's room so other proctors' marks reach this client.
func (s *Service) Watch(sessionID string) {
	s.bus.JoinRoom(sessionRoom(sessionID))
}

// Unwatch leaves the session's room.
func (s *Service) Unwatch(sessionID string) {
	s.bus.LeaveRoom(sessionRoom(sessionID))
}

// Mark validates and applies an attendance mark optimistically, emits it,
// and issues the durable write in parallel. Returns the temporary id, or an
// error when local validation rejects the mark before anything is applied.
func (s *Service) Mark(ctx context.Context, sessionID, studentID, status string) (string, error) {
	if err := validate(studentID, status); err != nil {
		return "", err
	}

	tempID := "tmp_" + uuid.New().String()
	rec := Record{
		ID:        tempID,
		SessionID: sessionID,
		StudentID: studentID,
		Status:    status,
		MarkedAt:  time.Now(),
		Pending:   true,
	}
	s.store.Insert(rec)
	s.update()

	s.bus.EmitToRoom(realtime.EventAttendanceMark, sessionRoom(sessionID), tempID, recordWire{
		ID:        tempID,
		SessionID: sessionID,
		StudentID: studentID,
		Status:    status,
		MarkedAt:  rec.MarkedAt,
	})

	go s.persist(context.WithoutCancel(ctx), tempID, rec)
	return tempID, nil
}

func (s *Service) persist(ctx context.Context, tempID string, rec Record) {
	var confirmed recordWire
	err := s.api.Post(ctx, "/attendance", markRequest{
		SessionID: rec.SessionID,
		StudentID: rec.StudentID,
		Status:    rec.Status,
		ClientRef: tempID,
	}, &confirmed)

	if err != nil {
		if _, ok := s.store.Fail(tempID); ok {
			s.notices.Push(notice.LevelError, "attendance mark for %s was not saved", rec.StudentID)
		}
		s.logger.Warnf(ctx, "attendance: durable write for %s failed: %v", tempID, err)
		s.update()
		return
	}

	s.store.Confirm(tempID, confirmed.toRecord())
	s.update()
}

// Records returns the visible marks of a session in order.
func (s *Service) Records(sessionID string) []Record {
	all := s.store.List()
	out := make([]Record, 0, len(all))
	for _, r := range all {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// PendingCount reports unresolved optimistic marks.
func (s *Service) PendingCount() int {
	return s.store.PendingCount()
}

// Close releases the event subscriptions.
func (s *Service) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
}

// handleMarked applies the server's validated echo. A rejected mark removes
// the optimistic record and surfaces the reason; an accepted one supersedes
// it in place.
func (s *Service) handleMarked(e realtime.Event) {
	var w recordWire
	if err := json.Unmarshal(e.Payload, &w); err != nil || w.ID == "" {
		s.logger.Warnf(context.Background(), "attendance: dropping malformed attendance:marked: %v", err)
		return
	}

	if !w.Accepted {
		removed := false
		if e.Ref != "" {
			_, removed = s.store.Fail(e.Ref)
		}
		if !removed {
			removed = s.store.Remove(w.ID)
		}
		if removed {
			reason := w.Reason
			if reason == "" {
				reason = "rejected by validation"
			}
			s.notices.Push(notice.LevelError, "attendance mark for %s: %s", w.StudentID, reason)
			s.update()
		}
		return
	}

	if s.store.ApplyRemote(e.Ref, w.toRecord()) {
		s.update()
	}
}

func (s *Service) update() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func validate(studentID, status string) error {
	if studentID == "" {
		return ErrMissingStudent
	}
	switch status {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return nil
	default:
		return ErrInvalidStatus
	}
}
