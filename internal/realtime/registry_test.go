package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"eduhub-realtime/pkg/log"
)

func TestRegistryDispatchInRegistrationOrder(t *testing.T) {
	reg := newRegistry(log.Nop())

	var got []string
	reg.register("notification:new", func(Event) { got = append(got, "first") })
	reg.register("notification:new", func(Event) { got = append(got, "second") })
	reg.register("notification:new", func(Event) { got = append(got, "third") })

	reg.dispatch(Event{Name: "notification:new"})

	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestRegistryMultipleSubscribersEachFireOnce(t *testing.T) {
	reg := newRegistry(log.Nop())

	countA, countB := 0, 0
	reg.register("notification:new", func(Event) { countA++ })
	reg.register("notification:new", func(Event) { countB++ })

	reg.dispatch(Event{Name: "notification:new", Payload: json.RawMessage(`{"id":"n-1"}`)})

	assert.Equal(t, 1, countA)
	assert.Equal(t, 1, countB)
}

func TestRegistryPanicIsolation(t *testing.T) {
	reg := newRegistry(log.Nop())

	var survivors []string
	reg.register("grade:updated", func(Event) { survivors = append(survivors, "before") })
	reg.register("grade:updated", func(Event) { panic("subscriber bug") })
	reg.register("grade:updated", func(Event) { survivors = append(survivors, "after") })
	otherFired := 0
	reg.register("exam:alert", func(Event) { otherFired++ })

	// The panicking subscriber must not stop its siblings, other events,
	// or subsequent frames.
	reg.dispatch(Event{Name: "grade:updated"})
	reg.dispatch(Event{Name: "exam:alert"})
	reg.dispatch(Event{Name: "grade:updated"})

	assert.Equal(t, []string{"before", "after", "before", "after"}, survivors)
	assert.Equal(t, 1, otherFired)
}

func TestRegistryUnregisterCleanliness(t *testing.T) {
	reg := newRegistry(log.Nop())

	removed, kept := 0, 0
	id := reg.register("message:new", func(Event) { removed++ })
	reg.register("message:new", func(Event) { kept++ })

	reg.dispatch(Event{Name: "message:new"})
	reg.unregister(id)
	reg.dispatch(Event{Name: "message:new"})

	assert.Equal(t, 1, removed, "unregistered callback must not fire again")
	assert.Equal(t, 2, kept, "remaining callbacks keep firing")
}

func TestRegistryUnregisterTwice(t *testing.T) {
	reg := newRegistry(log.Nop())

	fired := 0
	id := reg.register("message:new", func(Event) { fired++ })
	reg.unregister(id)
	reg.unregister(id)

	reg.dispatch(Event{Name: "message:new"})
	assert.Zero(t, fired)
}

func TestRegistryHandlerMaySubscribeDuringDispatch(t *testing.T) {
	reg := newRegistry(log.Nop())

	lateFired := 0
	reg.register("document:change", func(Event) {
		reg.register("document:change", func(Event) { lateFired++ })
	})

	reg.dispatch(Event{Name: "document:change"})
	assert.Zero(t, lateFired, "handler registered mid-dispatch sees only later frames")

	reg.dispatch(Event{Name: "document:change"})
	assert.Equal(t, 1, lateFired)
}
