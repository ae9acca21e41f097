package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"eduhub-realtime/pkg/log"
)

// subscription is one callback registered against one event name.
type subscription struct {
	id    string
	event string
	fn    Handler
}

// registry is a multi-map from event name to callbacks. It has no notion of
// owner: any number of features may register for the same event name, and
// each inbound frame is delivered to all of them in registration order.
//
// The map is mutated both by feature code (register/unregister) and by the
// network receive path (dispatch), so it is mutex-guarded.
type registry struct {
	mu     sync.Mutex
	subs   map[string][]*subscription
	byID   map[string]string // subscription id -> event name
	logger log.Logger
}

func newRegistry(logger log.Logger) *registry {
	return &registry{
		subs:   make(map[string][]*subscription),
		byID:   make(map[string]string),
		logger: logger,
	}
}

func (r *registry) register(event string, fn Handler) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscription{id: uuid.New().String(), event: event, fn: fn}
	r.subs[event] = append(r.subs[event], sub)
	r.byID[sub.id] = event
	return sub.id
}

func (r *registry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	list := r.subs[event]
	for i, sub := range list {
		if sub.id == id {
			r.subs[event] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.subs[event]) == 0 {
		delete(r.subs, event)
	}
}

// dispatch delivers an event to every live callback registered for its name.
// Callbacks are invoked outside the lock so a handler may subscribe or
// unsubscribe without deadlocking.
func (r *registry) dispatch(e Event) {
	r.mu.Lock()
	list := append([]*subscription(nil), r.subs[e.Name]...)
	r.mu.Unlock()

	for _, sub := range list {
		r.safeCall(sub, e)
	}
}

// safeCall isolates a panicking callback: it is logged and the remaining
// callbacks still receive the event.
func (r *registry) safeCall(sub *subscription, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf(context.Background(), "realtime: handler for %q panicked: %v", e.Name, rec)
		}
	}()
	sub.fn(e)
}
