package realtime

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"eduhub-realtime/config"
	"eduhub-realtime/pkg/log"
)

// TokenSource supplies the bearer credential attached to every (re)connect
// attempt. The session layer owns refreshing it; the transport only consumes
// it, so a credential refreshed between attempts is picked up automatically.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a TokenSource that always yields the same credential.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

// transport owns the single duplex connection: dial, auth handshake,
// read/write pumps, and the reconnect loop. Everything above it (registry,
// rooms, facade) only observes it through the three callbacks.
type transport struct {
	cfg    config.ClientConfig
	logger log.Logger
	tokens TokenSource

	onFrame     func(*Frame)
	onStatus    func(StatusChange)
	onConnected func() // fired after every successful handshake; drives room replay

	// Outbound queue shared across reconnects: frames queued while offline
	// are flushed by the next connection's write pump.
	send chan []byte

	mu      sync.Mutex
	status  Status
	lastErr error
	retries int
	running bool
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
}

func newTransport(
	cfg config.ClientConfig,
	logger log.Logger,
	tokens TokenSource,
	onFrame func(*Frame),
	onStatus func(StatusChange),
	onConnected func(),
) *transport {
	return &transport{
		cfg:         cfg,
		logger:      logger,
		tokens:      tokens,
		onFrame:     onFrame,
		onStatus:    onStatus,
		onConnected: onConnected,
		send:        make(chan []byte, cfg.SendQueueSize),
		status:      StatusDisconnected,
	}
}

// start launches the connect/reconnect loop. Idempotent: a second call while
// running is a no-op.
func (t *transport) start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.run(runCtx)
}

// stop closes the connection deliberately and suppresses reconnection until
// start is called again. Idempotent.
func (t *transport) stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	t.setStatus(StatusDisconnected, nil)
}

// run is the reconnect loop: dial, pump until the connection drops, back off,
// dial again. Only a context cancellation (Stop) ends it; failed attempts,
// including rejected handshakes, just feed the next backoff interval.
func (t *transport) run(ctx context.Context) {
	defer close(t.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.InitialBackoff
	bo.MaxInterval = t.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // unbounded attempts

	for {
		if ctx.Err() != nil {
			return
		}
		t.setStatus(StatusConnecting, nil)

		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.mu.Lock()
			t.retries++
			t.mu.Unlock()
			t.setStatus(StatusError, err)
			t.logger.Warnf(ctx, "realtime: connect failed: %v", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}

		bo.Reset()
		t.mu.Lock()
		t.conn = conn
		t.retries = 0
		t.mu.Unlock()
		t.setStatus(StatusConnected, nil)
		t.onConnected()

		writerDone := make(chan struct{})
		go t.writePump(conn, writerDone)
		t.readPump(conn)
		close(writerDone)
		conn.Close()

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		t.setStatus(StatusDisconnected, nil)
	}
}

// dial establishes the websocket connection with the auth credential in the
// query string, matching the relay's handshake contract.
func (t *transport) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	u, err := url.Parse(t.cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readPump pumps inbound frames to the dispatcher. It is the only reader on
// the connection and returns when the connection drops.
func (t *transport) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(t.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warnf(context.Background(), "realtime: read error: %v", err)
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			t.logger.Warnf(context.Background(), "realtime: dropping malformed frame: %v", err)
			continue
		}
		t.onFrame(frame)
	}
}

// writePump is the only writer on the connection. It drains the shared
// outbound queue and sends keepalive pings until the connection goes away.
func (t *transport) writePump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-t.send:
			conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Warnf(context.Background(), "realtime: write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a frame for sending. Fire-and-forget: a full queue drops the
// frame and reports false.
func (t *transport) enqueue(data []byte) bool {
	select {
	case t.send <- data:
		return true
	default:
		return false
	}
}

func (t *transport) setStatus(status Status, err error) {
	t.mu.Lock()
	if t.status == status && err == nil {
		t.mu.Unlock()
		return
	}
	old := t.status
	t.status = status
	if err != nil {
		t.lastErr = err
	}
	t.mu.Unlock()

	if t.onStatus != nil {
		t.onStatus(StatusChange{Old: old, New: status, Err: err})
	}
}

func (t *transport) state() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ConnState{Status: t.status, Retries: t.retries, LastErr: t.lastErr}
}
