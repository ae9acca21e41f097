package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

// SessionConfig holds per-connection timing limits.
type SessionConfig struct {
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Session is one client connection on the relay side.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	// Buffered channel of outbound frames, closed by the hub on unregister.
	send chan []byte

	cfg    SessionConfig
	logger log.Logger
	done   chan struct{}
}

// NewSession creates a new Session instance.
func NewSession(hub *Hub, conn *websocket.Conn, userID string, cfg SessionConfig, logger log.Logger) *Session {
	return &Session{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start starts the session's read and write pumps.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

// Close closes the session.
func (s *Session) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
		s.conn.Close()
	}
}

// readPump is the only reader on the connection. It routes control frames
// (room join/leave) to the hub and fans everything else back out to the
// frame's room, sender included.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Errorf(context.Background(), "relay: read error for user %s: %v", s.userID, err)
			}
			break
		}

		frame, err := realtime.DecodeFrame(data)
		if err != nil {
			s.logger.Warnf(context.Background(), "relay: dropping malformed frame from user %s: %v", s.userID, err)
			continue
		}

		switch frame.Event {
		case realtime.EventRoomJoin:
			s.hub.Join(s, frame.Room)
		case realtime.EventRoomLeave:
			s.hub.Leave(s, frame.Room)
		default:
			s.hub.Broadcast(frame.Room, data)
		}
	}
}

// writePump is the only writer on the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}
