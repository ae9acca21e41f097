package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomSetAddIsIdempotent(t *testing.T) {
	s := newRoomSet()

	assert.True(t, s.add("document:42"))
	assert.False(t, s.add("document:42"))
	assert.Equal(t, 1, s.len())
}

func TestRoomSetRemoveUnjoinedIsNoop(t *testing.T) {
	s := newRoomSet()

	assert.False(t, s.remove("exam:7"))

	s.add("exam:7")
	assert.True(t, s.remove("exam:7"))
	assert.False(t, s.remove("exam:7"))
	assert.Zero(t, s.len())
}

func TestRoomSetSnapshotIsComplete(t *testing.T) {
	s := newRoomSet()
	s.add("document:42")
	s.add("attendance:9")
	s.add("conversation:3")
	s.remove("attendance:9")

	assert.ElementsMatch(t, []string{"document:42", "conversation:3"}, s.snapshot())
}
