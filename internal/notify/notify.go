package notify

import (
	"sync"
	"time"

	"github.com/nats-io/nuid"
)

const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notification is a one-shot user-facing notice. The original app kept these
// in a module-level toast list; here they live in an explicit Center created
// at startup and mutated only through its own methods.
type Notification struct {
	ID      string    `json:"id"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Center fans notifications out to subscribers (typically SSE streams).
// Delivery is best-effort: a subscriber that cannot keep up misses the
// notice rather than blocking the publisher.
type Center struct {
	Now   func() time.Time
	NewID func() string

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Notification
}

func NewCenter() *Center {
	return &Center{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: nuid.Next,
		subs:  map[uint64]chan Notification{},
	}
}

func (c *Center) Success(message string) { c.publish(LevelSuccess, message) }
func (c *Center) Error(message string)   { c.publish(LevelError, message) }

func (c *Center) publish(level, message string) {
	n := Notification{
		ID:      c.NewID(),
		Level:   level,
		Message: message,
		At:      c.Now(),
	}

	c.mu.Lock()
	subs := make([]chan Notification, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribe registers a listener. The returned cancel func removes it; no
// notifications are delivered to the channel after cancel returns.
func (c *Center) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
	return ch, cancel
}
