package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"eduhub-realtime/pkg/log"
)

// broadcast is one frame to fan out. An empty room targets every session.
type broadcast struct {
	room string
	data []byte
}

// Hub maintains the set of active sessions and their room memberships, and
// fans inbound frames out to interested sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}

	register   chan *Session
	unregister chan *Session
	broadcasts chan broadcast

	// Metrics
	totalFramesSent    atomic.Int64
	totalFramesDropped atomic.Int64

	maxConnections int
	logger         log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(logger log.Logger, maxConnections int) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		sessions:       make(map[*Session]struct{}),
		rooms:          make(map[string]map[*Session]struct{}),
		register:       make(chan *Session, 100),
		unregister:     make(chan *Session, 100),
		broadcasts:     make(chan broadcast, 1000),
		maxConnections: maxConnections,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info(context.Background(), "relay: hub shutting down...")
			h.closeAllSessions()
			return

		case sess := <-h.register:
			h.registerSession(sess)

		case sess := <-h.unregister:
			h.unregisterSession(sess)

		case b := <-h.broadcasts:
			h.fanOut(b)
		}
	}
}

// Broadcast queues a frame for fan-out. Used by sessions for client emits
// and by the Redis bridge for frames published by backend services.
func (h *Hub) Broadcast(room string, data []byte) {
	select {
	case h.broadcasts <- broadcast{room: room, data: data}:
	default:
		h.totalFramesDropped.Add(1)
		h.logger.Warn(context.Background(), "relay: broadcast queue full, dropping frame")
	}
}

// Join adds a session to a room. Re-joining is a no-op, which makes the
// client's replay after reconnect harmless.
func (h *Hub) Join(sess *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[sess] = struct{}{}
}

// Leave removes a session from a room.
func (h *Hub) Leave(sess *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sess, room)
}

func (h *Hub) leaveLocked(sess *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sess)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) registerSession(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.sessions) >= h.maxConnections {
		h.logger.Warnf(context.Background(), "relay: max connections reached, rejecting user %s", sess.userID)
		go sess.Close()
		return
	}

	h.sessions[sess] = struct{}{}
	h.logger.Infof(context.Background(), "relay: user connected: %s (total sessions: %d)", sess.userID, len(h.sessions))
}

func (h *Hub) unregisterSession(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[sess]; !ok {
		return
	}
	delete(h.sessions, sess)
	for room := range h.rooms {
		h.leaveLocked(sess, room)
	}
	close(sess.send)
	h.logger.Infof(context.Background(), "relay: user disconnected: %s (total sessions: %d)", sess.userID, len(h.sessions))
}

// fanOut delivers a frame to every session in the target room, or to every
// session when the frame is unscoped. The sender is included: the echo is
// what feature clients de-duplicate against.
func (h *Hub) fanOut(b broadcast) {
	h.mu.RLock()
	var targets []*Session
	if b.room == "" {
		targets = make([]*Session, 0, len(h.sessions))
		for sess := range h.sessions {
			targets = append(targets, sess)
		}
	} else {
		targets = make([]*Session, 0, len(h.rooms[b.room]))
		for sess := range h.rooms[b.room] {
			targets = append(targets, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		select {
		case sess.send <- b.data:
			h.totalFramesSent.Add(1)
		default:
			h.totalFramesDropped.Add(1)
			h.logger.Warnf(context.Background(), "relay: send buffer full for user %s, dropping frame", sess.userID)
		}
	}
}

func (h *Hub) closeAllSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sess := range h.sessions {
		sess.Close()
	}
	h.sessions = make(map[*Session]struct{})
	h.rooms = make(map[string]map[*Session]struct{})
}

// Stats returns hub statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HubStats{
		ActiveSessions:     len(h.sessions),
		ActiveRooms:        len(h.rooms),
		TotalFramesSent:    h.totalFramesSent.Load(),
		TotalFramesDropped: h.totalFramesDropped.Load(),
	}
}

// RoomSize reports the number of sessions in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Shutdown gracefully shuts down the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HubStats represents hub statistics.
type HubStats struct {
	ActiveSessions     int   `json:"active_sessions"`
	ActiveRooms        int   `json:"active_rooms"`
	TotalFramesSent    int64 `json:"total_frames_sent"`
	TotalFramesDropped int64 `json:"total_frames_dropped"`
}
