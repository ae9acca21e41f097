package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub-realtime/pkg/log"
)

func newHubForTest(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(log.Nop(), 16)
	go hub.Run()
	return hub
}

func newSessionForTest(userID string, buffer int) *Session {
	return &Session{
		userID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func drainHub(t *testing.T, hub *Hub, sessions ...*Session) {
	t.Helper()
	for _, sess := range sessions {
		hub.unregister <- sess
	}
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 0
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
}

func recvFrame(t *testing.T, sess *Session) []byte {
	t.Helper()
	select {
	case data := <-sess.send:
		return data
	case <-time.After(time.Second):
		t.Fatalf("session %s received no frame", sess.userID)
		return nil
	}
}

func assertNoFrame(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case data := <-sess.send:
		t.Fatalf("session %s unexpectedly received %s", sess.userID, data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := newHubForTest(t)

	alice := newSessionForTest("alice", 8)
	bob := newSessionForTest("bob", 8)
	hub.register <- alice
	hub.register <- bob

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 2
	}, time.Second, 5*time.Millisecond)

	hub.unregister <- alice
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 1
	}, time.Second, 5*time.Millisecond)

	_, open := <-alice.send
	assert.False(t, open, "unregister must close the session's send channel")

	drainHub(t, hub, bob)
}

func TestHubRoomScopedFanOut(t *testing.T) {
	hub := newHubForTest(t)

	alice := newSessionForTest("alice", 8)
	bob := newSessionForTest("bob", 8)
	carol := newSessionForTest("carol", 8)
	hub.register <- alice
	hub.register <- bob
	hub.register <- carol
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 3
	}, time.Second, 5*time.Millisecond)

	hub.Join(alice, "document:42")
	hub.Join(bob, "document:42")
	require.Equal(t, 2, hub.RoomSize("document:42"))

	// The sender is a room member too: the echo is what clients reconcile
	// optimistic records against.
	hub.Broadcast("document:42", []byte(`{"event":"document:change"}`))

	assert.JSONEq(t, `{"event":"document:change"}`, string(recvFrame(t, alice)))
	assert.JSONEq(t, `{"event":"document:change"}`, string(recvFrame(t, bob)))
	assertNoFrame(t, carol)

	drainHub(t, hub, alice, bob, carol)
}

func TestHubUnscopedBroadcastReachesAll(t *testing.T) {
	hub := newHubForTest(t)

	alice := newSessionForTest("alice", 8)
	bob := newSessionForTest("bob", 8)
	hub.register <- alice
	hub.register <- bob
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 2
	}, time.Second, 5*time.Millisecond)

	hub.Broadcast("", []byte(`{"event":"announcement:broadcast"}`))

	recvFrame(t, alice)
	recvFrame(t, bob)

	drainHub(t, hub, alice, bob)
}

func TestHubRejoinIsHarmless(t *testing.T) {
	hub := newHubForTest(t)

	alice := newSessionForTest("alice", 8)
	hub.register <- alice
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 1
	}, time.Second, 5*time.Millisecond)

	// A reconnecting client replays its joins; the duplicate must not cause
	// duplicate delivery.
	hub.Join(alice, "exam:7")
	hub.Join(alice, "exam:7")
	require.Equal(t, 1, hub.RoomSize("exam:7"))

	hub.Broadcast("exam:7", []byte(`{"event":"exam:alert"}`))
	recvFrame(t, alice)
	assertNoFrame(t, alice)

	drainHub(t, hub, alice)
}

func TestHubLeaveDropsEmptyRoom(t *testing.T) {
	hub := newHubForTest(t)

	alice := newSessionForTest("alice", 8)
	hub.register <- alice
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 1
	}, time.Second, 5*time.Millisecond)

	hub.Join(alice, "conversation:3")
	require.Equal(t, 1, hub.Stats().ActiveRooms)

	hub.Leave(alice, "conversation:3")
	assert.Zero(t, hub.RoomSize("conversation:3"))
	assert.Zero(t, hub.Stats().ActiveRooms)

	hub.Broadcast("conversation:3", []byte(`{"event":"message:new"}`))
	assertNoFrame(t, alice)

	drainHub(t, hub, alice)
}

func TestHubUnregisterLeavesAllRooms(t *testing.T) {
	hub := newHubForTest(t)

	alice := newSessionForTest("alice", 8)
	hub.register <- alice
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 1
	}, time.Second, 5*time.Millisecond)

	hub.Join(alice, "document:42")
	hub.Join(alice, "attendance:9")

	hub.unregister <- alice
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveRooms == 0
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
}

func TestHubDropsFramesForSlowSession(t *testing.T) {
	hub := newHubForTest(t)

	slow := newSessionForTest("slow", 1)
	hub.register <- slow
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveSessions == 1
	}, time.Second, 5*time.Millisecond)

	hub.Join(slow, "exam:7")
	hub.Broadcast("exam:7", []byte(`{"event":"exam:alert","n":1}`))
	hub.Broadcast("exam:7", []byte(`{"event":"exam:alert","n":2}`))

	require.Eventually(t, func() bool {
		return hub.Stats().TotalFramesDropped == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), hub.Stats().TotalFramesSent)

	recvFrame(t, slow)
	drainHub(t, hub, slow)
}
