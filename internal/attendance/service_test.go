package attendance

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub-realtime/internal/notice"
	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

type fakeBus struct {
	mu       sync.Mutex
	handlers map[string][]realtime.Handler
	emitted  []emitted
	rooms    map[string]bool
}

type emitted struct {
	event   string
	room    string
	ref     string
	payload any
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers: make(map[string][]realtime.Handler),
		rooms:    make(map[string]bool),
	}
}

func (b *fakeBus) Subscribe(event string, fn realtime.Handler) func() {
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], fn)
	b.mu.Unlock()
	return func() {}
}

func (b *fakeBus) Emit(event string, payload any) { b.EmitToRoom(event, "", "", payload) }

func (b *fakeBus) EmitRef(event, ref string, payload any) { b.EmitToRoom(event, "", ref, payload) }

func (b *fakeBus) EmitToRoom(event, room, ref string, payload any) {
	b.mu.Lock()
	b.emitted = append(b.emitted, emitted{event: event, room: room, ref: ref, payload: payload})
	b.mu.Unlock()
}

func (b *fakeBus) JoinRoom(room string) {
	b.mu.Lock()
	b.rooms[room] = true
	b.mu.Unlock()
}

func (b *fakeBus) LeaveRoom(room string) {
	b.mu.Lock()
	delete(b.rooms, room)
	b.mu.Unlock()
}

func (b *fakeBus) IsConnected() bool { return true }

func (b *fakeBus) deliver(t *testing.T, event, ref string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	b.mu.Lock()
	handlers := append([]realtime.Handler(nil), b.handlers[event]...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(realtime.Event{Name: event, Ref: ref, Payload: data})
	}
}

type fakePoster struct {
	mu      sync.Mutex
	calls   int
	done    chan struct{}
	respond func(path string, body, out any) error
}

func newFakePoster(respond func(path string, body, out any) error) *fakePoster {
	return &fakePoster{respond: respond, done: make(chan struct{}, 16)}
}

func (p *fakePoster) Post(ctx context.Context, path string, body, out any) error {
	p.mu.Lock()
	p.calls++
	respond := p.respond
	p.mu.Unlock()

	var err error
	if respond != nil {
		err = respond(path, body, out)
	}
	p.done <- struct{}{}
	return err
}

func (p *fakePoster) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("durable write never resolved")
	}
}

func confirmWith(id string) func(path string, body, out any) error {
	return func(path string, body, out any) error {
		req := body.(markRequest)
		*out.(*recordWire) = recordWire{
			ID:        id,
			SessionID: req.SessionID,
			StudentID: req.StudentID,
			Status:    req.Status,
			MarkedAt:  time.Now(),
		}
		return nil
	}
}

func TestMarkRejectsInvalidInputLocally(t *testing.T) {
	bus := newFakeBus()
	api := newFakePoster(nil)
	svc := NewService(bus, api, notice.NewCenter(), "teacher-1", log.Nop())
	defer svc.Close()

	_, err := svc.Mark(context.Background(), "sess-1", "student-1", "vanished")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Mark(context.Background(), "sess-1", "", StatusPresent)
	assert.ErrorIs(t, err, ErrMissingStudent)

	assert.Empty(t, svc.Records("sess-1"), "rejected input must not be applied")
	bus.mu.Lock()
	assert.Empty(t, bus.emitted, "rejected input must not be emitted")
	bus.mu.Unlock()
	assert.Zero(t, api.calls)
}

func TestMarkIsVisibleImmediately(t *testing.T) {
	bus := newFakeBus()

	// Hold the durable write open so only the optimistic state is observed.
	release := make(chan struct{})
	defer close(release)
	api := newFakePoster(func(path string, body, out any) error {
		<-release
		return confirmWith("att-301")(path, body, out)
	})
	svc := NewService(bus, api, notice.NewCenter(), "teacher-1", log.Nop())
	defer svc.Close()

	tempID, err := svc.Mark(context.Background(), "sess-1", "student-1", StatusLate)
	require.NoError(t, err)

	recs := svc.Records("sess-1")
	require.Len(t, recs, 1)
	assert.Equal(t, tempID, recs[0].ID)
	assert.Equal(t, StatusLate, recs[0].Status)
	assert.True(t, recs[0].Pending)

	bus.mu.Lock()
	require.Len(t, bus.emitted, 1)
	assert.Equal(t, realtime.EventAttendanceMark, bus.emitted[0].event)
	assert.Equal(t, "attendance:sess-1", bus.emitted[0].room)
	assert.Equal(t, tempID, bus.emitted[0].ref)
	bus.mu.Unlock()
}

func TestMarkConfirmReplacesTemporaryRecord(t *testing.T) {
	bus := newFakeBus()
	api := newFakePoster(confirmWith("att-301"))
	svc := NewService(bus, api, notice.NewCenter(), "teacher-1", log.Nop())
	defer svc.Close()

	_, err := svc.Mark(context.Background(), "sess-1", "student-1", StatusPresent)
	require.NoError(t, err)
	api.waitDone(t)

	require.Eventually(t, func() bool { return svc.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
	recs := svc.Records("sess-1")
	require.Len(t, recs, 1)
	assert.Equal(t, "att-301", recs[0].ID)
}

func TestMarkDurableFailureRollsBack(t *testing.T) {
	bus := newFakeBus()
	api := newFakePoster(func(string, any, any) error {
		return errors.New("persistence unavailable")
	})
	notices := notice.NewCenter()
	svc := NewService(bus, api, notices, "teacher-1", log.Nop())
	defer svc.Close()

	_, err := svc.Mark(context.Background(), "sess-1", "student-1", StatusPresent)
	require.NoError(t, err)
	api.waitDone(t)

	require.Eventually(t, func() bool { return len(notices.List()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, svc.Records("sess-1"))
	assert.Contains(t, notices.List()[0].Text, "student-1")
}

func TestServerRejectionRemovesMarkWithReason(t *testing.T) {
	bus := newFakeBus()
	release := make(chan struct{})
	api := newFakePoster(func(path string, body, out any) error {
		<-release
		return confirmWith("att-301")(path, body, out)
	})
	notices := notice.NewCenter()
	svc := NewService(bus, api, notices, "teacher-1", log.Nop())
	defer svc.Close()

	tempID, err := svc.Mark(context.Background(), "sess-1", "student-1", StatusPresent)
	require.NoError(t, err)

	bus.deliver(t, realtime.EventAttendanceMarked, tempID, recordWire{
		ID:        tempID,
		SessionID: "sess-1",
		StudentID: "student-1",
		Status:    StatusPresent,
		Accepted:  false,
		Reason:    "student not enrolled in this session",
	})

	assert.Empty(t, svc.Records("sess-1"))
	list := notices.List()
	require.Len(t, list, 1)
	assert.Equal(t, notice.LevelError, list[0].Level)
	assert.Contains(t, list[0].Text, "student not enrolled")

	close(release)
	api.waitDone(t)
}

func TestRejectedMarkStaysGoneAfterDurableSuccess(t *testing.T) {
	bus := newFakeBus()
	release := make(chan struct{})
	api := newFakePoster(func(path string, body, out any) error {
		<-release
		return confirmWith("att-301")(path, body, out)
	})
	notices := notice.NewCenter()
	svc := NewService(bus, api, notices, "teacher-1", log.Nop())
	defer svc.Close()

	tempID, err := svc.Mark(context.Background(), "sess-1", "student-1", StatusPresent)
	require.NoError(t, err)

	bus.deliver(t, realtime.EventAttendanceMarked, tempID, recordWire{
		ID:        tempID,
		SessionID: "sess-1",
		StudentID: "student-1",
		Status:    StatusPresent,
		Accepted:  false,
		Reason:    "duplicate mark",
	})
	require.Empty(t, svc.Records("sess-1"))

	// The durable write succeeds after the rejection already removed the
	// record; the late confirmation must not bring it back.
	close(release)
	api.waitDone(t)

	require.Eventually(t, func() bool { return svc.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, svc.Records("sess-1"))
}

func TestServerRejectionWithoutReasonUsesDefault(t *testing.T) {
	bus := newFakeBus()
	notices := notice.NewCenter()
	svc := NewService(bus, newFakePoster(nil), notices, "teacher-1", log.Nop())
	defer svc.Close()

	// A mark made by another proctor and later rejected arrives by id only.
	bus.deliver(t, realtime.EventAttendanceMarked, "", recordWire{
		ID: "att-9", SessionID: "sess-1", StudentID: "student-2",
		Status: StatusAbsent, MarkedAt: time.Now(), Accepted: true,
	})
	require.Len(t, svc.Records("sess-1"), 1)

	bus.deliver(t, realtime.EventAttendanceMarked, "", recordWire{
		ID: "att-9", SessionID: "sess-1", StudentID: "student-2",
		Status: StatusAbsent, Accepted: false,
	})

	assert.Empty(t, svc.Records("sess-1"))
	list := notices.List()
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Text, "rejected by validation")
}

func TestAcceptedEchoSupersedesPendingMark(t *testing.T) {
	bus := newFakeBus()
	release := make(chan struct{})
	api := newFakePoster(func(path string, body, out any) error {
		<-release
		return confirmWith("att-301")(path, body, out)
	})
	svc := NewService(bus, api, notice.NewCenter(), "teacher-1", log.Nop())
	defer svc.Close()

	tempID, err := svc.Mark(context.Background(), "sess-1", "student-1", StatusPresent)
	require.NoError(t, err)

	bus.deliver(t, realtime.EventAttendanceMarked, tempID, recordWire{
		ID: "att-301", SessionID: "sess-1", StudentID: "student-1",
		Status: StatusPresent, MarkedAt: time.Now(), Accepted: true,
	})

	recs := svc.Records("sess-1")
	require.Len(t, recs, 1)
	assert.Equal(t, "att-301", recs[0].ID)

	close(release)
	api.waitDone(t)

	require.Eventually(t, func() bool { return svc.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
	require.Len(t, svc.Records("sess-1"), 1, "late confirmation must not duplicate the record")
}

func TestRemoteMarkFromAnotherProctor(t *testing.T) {
	bus := newFakeBus()
	svc := NewService(bus, newFakePoster(nil), notice.NewCenter(), "teacher-1", log.Nop())
	defer svc.Close()

	at := time.Now()
	wire := recordWire{
		ID: "att-7", SessionID: "sess-1", StudentID: "student-2",
		Status: StatusPresent, MarkedAt: at, Accepted: true,
	}
	bus.deliver(t, realtime.EventAttendanceMarked, "", wire)
	bus.deliver(t, realtime.EventAttendanceMarked, "", wire)

	recs := svc.Records("sess-1")
	require.Len(t, recs, 1, "duplicate broadcast must not duplicate the mark")

	// A newer re-mark for the same record replaces the status.
	wire.Status = StatusLate
	wire.MarkedAt = at.Add(time.Second)
	bus.deliver(t, realtime.EventAttendanceMarked, "", wire)

	recs = svc.Records("sess-1")
	require.Len(t, recs, 1)
	assert.Equal(t, StatusLate, recs[0].Status)
}

func TestWatchJoinsSessionRoom(t *testing.T) {
	bus := newFakeBus()
	svc := NewService(bus, newFakePoster(nil), notice.NewCenter(), "teacher-1", log.Nop())
	defer svc.Close()

	svc.Watch("sess-1")
	assert.True(t, bus.rooms["attendance:sess-1"])

	svc.Unwatch("sess-1")
	assert.False(t, bus.rooms["attendance:sess-1"])
}
