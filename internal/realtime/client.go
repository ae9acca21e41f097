package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"eduhub-realtime/config"
	"eduhub-realtime/pkg/log"
)

// Bus is the surface feature code depends on. *Client implements it; feature
// tests substitute a fake. None of these methods block, return errors, or
// panic into the caller — all failure is communicated through the connection
// status observable or through feature-level response payloads.
type Bus interface {
	Subscribe(event string, fn Handler) func()
	Emit(event string, payload any)
	EmitRef(event, ref string, payload any)
	EmitToRoom(event, room, ref string, payload any)
	JoinRoom(room string)
	LeaveRoom(room string)
	IsConnected() bool
}

// Client is the realtime facade: one instance per dashboard session, created
// at startup with explicit dependencies and torn down with Stop on logout.
type Client struct {
	cfg    config.ClientConfig
	logger log.Logger

	reg   *registry
	rooms *roomSet
	tr    *transport

	statusMu   sync.Mutex
	statusSubs map[string]func(StatusChange)
}

// New constructs a Client. It does not connect; call Start.
func New(cfg config.ClientConfig, logger log.Logger, tokens TokenSource) *Client {
	c := &Client{
		cfg:        cfg,
		logger:     logger,
		reg:        newRegistry(logger),
		rooms:      newRoomSet(),
		statusSubs: make(map[string]func(StatusChange)),
	}
	c.tr = newTransport(cfg, logger, tokens, c.handleFrame, c.handleStatus, c.handleConnected)
	return c
}

// Start connects and keeps the connection alive until Stop. Idempotent.
func (c *Client) Start(ctx context.Context) {
	c.tr.start(ctx)
}

// Stop closes the connection deliberately (logout) and suppresses
// reconnection. Idempotent.
func (c *Client) Stop() {
	c.tr.stop()
}

// Subscribe registers a handler for a named event and returns its release
// closure. The owning component must call the closure on its own teardown;
// leaked callbacks keep firing after the owner is gone.
func (c *Client) Subscribe(event string, fn Handler) func() {
	id := c.reg.register(event, fn)
	return func() { c.reg.unregister(id) }
}

// Emit sends a named event, fire-and-forget. Delivery and ordering relative
// to parallel durable writes are not guaranteed; reconcile by id, not by
// arrival order.
func (c *Client) Emit(event string, payload any) {
	c.EmitToRoom(event, "", "", payload)
}

// EmitRef is Emit with a client-generated correlation id, echoed back by the
// server so optimistic records can be reconciled.
func (c *Client) EmitRef(event, ref string, payload any) {
	c.EmitToRoom(event, "", ref, payload)
}

// EmitToRoom scopes the frame to a room: the server fans it out to that
// room's members only. An empty room broadcasts unscoped.
func (c *Client) EmitToRoom(event, room, ref string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		c.logger.Errorf(context.Background(), "realtime: cannot marshal %q payload: %v", event, err)
		return
	}
	frame.Room = room
	frame.Ref = ref

	data, err := frame.Encode()
	if err != nil {
		c.logger.Errorf(context.Background(), "realtime: cannot encode %q frame: %v", event, err)
		return
	}
	if !c.tr.enqueue(data) {
		c.logger.Warnf(context.Background(), "realtime: dropping %q: %v", event, ErrQueueFull)
	}
}

// JoinRoom declares interest in a scoped topic. Joining an already joined
// room is a no-op. While disconnected the join is deferred: the room is
// tracked and replayed on the next successful connect.
func (c *Client) JoinRoom(room string) {
	if !c.rooms.add(room) {
		return
	}
	if c.IsConnected() {
		c.sendRoomFrame(EventRoomJoin, room)
	}
}

// LeaveRoom drops interest in a room. Leaving an unjoined room is a no-op.
func (c *Client) LeaveRoom(room string) {
	if !c.rooms.remove(room) {
		return
	}
	if c.IsConnected() {
		c.sendRoomFrame(EventRoomLeave, room)
	}
}

// Rooms returns the currently tracked room set.
func (c *Client) Rooms() []string {
	return c.rooms.snapshot()
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	return c.tr.state().Status
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// State returns a snapshot of status, retry count and last error.
func (c *Client) State() ConnState {
	return c.tr.state()
}

// OnStatusChange registers an observer for status transitions and returns
// its release closure.
func (c *Client) OnStatusChange(fn func(StatusChange)) func() {
	id := uuid.New().String()
	c.statusMu.Lock()
	c.statusSubs[id] = fn
	c.statusMu.Unlock()

	return func() {
		c.statusMu.Lock()
		delete(c.statusSubs, id)
		c.statusMu.Unlock()
	}
}

func (c *Client) sendRoomFrame(event, room string) {
	frame, _ := NewFrame(event, nil)
	frame.Room = room
	data, err := frame.Encode()
	if err != nil {
		c.logger.Errorf(context.Background(), "realtime: cannot encode %q frame: %v", event, err)
		return
	}
	if !c.tr.enqueue(data) {
		c.logger.Warnf(context.Background(), "realtime: dropping %q for room %s: %v", event, room, ErrQueueFull)
	}
}

// handleConnected runs after every successful handshake: replay a join for
// every tracked room so the server's membership converges to the local set.
func (c *Client) handleConnected() {
	for _, room := range c.rooms.snapshot() {
		c.sendRoomFrame(EventRoomJoin, room)
	}
}

func (c *Client) handleFrame(f *Frame) {
	c.reg.dispatch(Event{Name: f.Event, Room: f.Room, Ref: f.Ref, Payload: f.Payload})
}

func (c *Client) handleStatus(change StatusChange) {
	c.statusMu.Lock()
	subs := make([]func(StatusChange), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		subs = append(subs, fn)
	}
	c.statusMu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}
