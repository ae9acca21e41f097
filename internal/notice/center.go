// Package notice collects transient, dismissable user notifications. No
// feature is allowed to silently drop a user's action: failed reconciliations
// land here for the UI to render as toasts.
package notice

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a notice for rendering.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is one transient notification.
type Notice struct {
	ID        string
	Level     Level
	Text      string
	CreatedAt time.Time
}

// Center holds the current notices. One instance per dashboard session.
type Center struct {
	mu       sync.Mutex
	notices  []Notice
	onChange func()
}

func NewCenter() *Center {
	return &Center{}
}

// OnChange sets a hook invoked after every push or dismiss.
func (c *Center) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Push adds a notice and returns it.
func (c *Center) Push(level Level, format string, args ...any) Notice {
	n := Notice{
		ID:        uuid.New().String(),
		Level:     level,
		Text:      fmt.Sprintf(format, args...),
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	c.notices = append(c.notices, n)
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return n
}

// Dismiss removes a notice by id.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	var fn func()
	found := false
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			found = true
			fn = c.onChange
			break
		}
	}
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return found
}

// List returns the current notices, oldest first.
func (c *Center) List() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}
