package realtime

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// TypingPayload is the wire payload for typing:start and typing:stop.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// TypingNotifier emits throttled typing start/stop events for the local
// user. Repeated Start calls within the throttle window are suppressed so a
// fast typist does not flood the connection.
type TypingNotifier struct {
	bus      Bus
	userID   string
	throttle time.Duration

	mu        sync.Mutex
	lastStart map[string]time.Time // conversation id -> last start emit
	now       func() time.Time
}

func NewTypingNotifier(bus Bus, userID string, throttle time.Duration) *TypingNotifier {
	return &TypingNotifier{
		bus:       bus,
		userID:    userID,
		throttle:  throttle,
		lastStart: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Start signals that the local user is typing in a conversation.
func (n *TypingNotifier) Start(conversationID string) {
	n.mu.Lock()
	last, ok := n.lastStart[conversationID]
	if ok && n.now().Sub(last) < n.throttle {
		n.mu.Unlock()
		return
	}
	n.lastStart[conversationID] = n.now()
	n.mu.Unlock()

	n.bus.EmitToRoom(EventTypingStart, "conversation:"+conversationID, "",
		TypingPayload{ConversationID: conversationID, UserID: n.userID})
}

// Stop signals that the local user stopped typing.
func (n *TypingNotifier) Stop(conversationID string) {
	n.mu.Lock()
	delete(n.lastStart, conversationID)
	n.mu.Unlock()

	n.bus.EmitToRoom(EventTypingStop, "conversation:"+conversationID, "",
		TypingPayload{ConversationID: conversationID, UserID: n.userID})
}

// TypingTracker turns raw typing events into a per-conversation "who is
// typing" set with automatic expiry. A sender that disconnects mid-type
// without an explicit stop is cleared when its expiry timer fires.
// typingEntry is one user's live typing state. gen increments on every
// refresh so an expiry callback queued before the refresh is recognized as
// stale and ignored.
type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

type TypingTracker struct {
	expiry   time.Duration
	onChange func(conversationID string)

	mu     sync.Mutex
	active map[string]map[string]*typingEntry // conversation -> user
	unsubs []func()
	closed bool
}

// NewTypingTracker subscribes to typing events on the bus. onChange is
// invoked (possibly from a timer goroutine) whenever a conversation's typing
// set changes; it may be nil.
func NewTypingTracker(bus Bus, expiry time.Duration, onChange func(conversationID string)) *TypingTracker {
	t := &TypingTracker{
		expiry:   expiry,
		onChange: onChange,
		active:   make(map[string]map[string]*typingEntry),
	}
	t.unsubs = append(t.unsubs,
		bus.Subscribe(EventTypingStart, t.handleStart),
		bus.Subscribe(EventTypingStop, t.handleStop),
	)
	return t
}

// Typing returns the users currently typing in a conversation, sorted.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.active[conversationID]))
	for user := range t.active[conversationID] {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Close releases the subscriptions and stops all expiry timers.
func (t *TypingTracker) Close() {
	for _, unsub := range t.unsubs {
		unsub()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, users := range t.active {
		for _, entry := range users {
			entry.timer.Stop()
		}
	}
	t.active = make(map[string]map[string]*typingEntry)
}

func (t *TypingTracker) handleStart(e Event) {
	var p TypingPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.ConversationID == "" || p.UserID == "" {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	users, ok := t.active[p.ConversationID]
	if !ok {
		users = make(map[string]*typingEntry)
		t.active[p.ConversationID] = users
	}
	changed := false
	conv, user := p.ConversationID, p.UserID
	entry, ok := users[user]
	if ok {
		// Replace the timer rather than resetting it: an already fired
		// timer has its expire callback queued, and bumping gen makes
		// that stale callback a no-op.
		entry.timer.Stop()
		entry.gen++
	} else {
		entry = &typingEntry{gen: 1}
		users[user] = entry
		changed = true
	}
	gen := entry.gen
	entry.timer = time.AfterFunc(t.expiry, func() { t.expire(conv, user, gen) })
	t.mu.Unlock()

	if changed {
		t.notify(p.ConversationID)
	}
}

func (t *TypingTracker) handleStop(e Event) {
	var p TypingPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return
	}
	t.clear(p.ConversationID, p.UserID)
}

// expire clears a user only when gen still matches: a refresh that landed
// after this timer fired supersedes it.
func (t *TypingTracker) expire(conversationID, userID string, gen uint64) {
	t.mu.Lock()
	entry, ok := t.active[conversationID][userID]
	if !ok || entry.gen != gen {
		t.mu.Unlock()
		return
	}
	t.removeLocked(conversationID, userID, entry)
	t.mu.Unlock()

	t.notify(conversationID)
}

func (t *TypingTracker) clear(conversationID, userID string) {
	t.mu.Lock()
	entry, ok := t.active[conversationID][userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.removeLocked(conversationID, userID, entry)
	t.mu.Unlock()

	t.notify(conversationID)
}

func (t *TypingTracker) removeLocked(conversationID, userID string, entry *typingEntry) {
	entry.timer.Stop()
	users := t.active[conversationID]
	delete(users, userID)
	if len(users) == 0 {
		delete(t.active, conversationID)
	}
}

func (t *TypingTracker) notify(conversationID string) {
	if t.onChange != nil {
		t.onChange(conversationID)
	}
}
