package realtime

import (
	"sync"
	"time"
)

// roomSet tracks the rooms the client has declared interest in. The set is
// the client-side source of truth: after every reconnect the transport
// replays a join for each tracked room, so the server's view converges to
// exactly this set within one reconnect cycle.
type roomSet struct {
	mu    sync.Mutex
	rooms map[string]time.Time // room key -> join timestamp
}

func newRoomSet() *roomSet {
	return &roomSet{rooms: make(map[string]time.Time)}
}

// add records membership. Returns false if the room was already joined.
func (s *roomSet) add(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room]; ok {
		return false
	}
	s.rooms[room] = time.Now()
	return true
}

// remove drops membership. Returns false if the room was never joined.
func (s *roomSet) remove(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	return true
}

// snapshot returns the currently tracked rooms. Order is unspecified;
// replay cares about completeness, not order.
func (s *roomSet) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (s *roomSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
