// Package livefeed manages the push side of the calendar streamer: NATS
// subscriptions shared across SSE connections, change coalescing, and
// replacement of a user's previous stream when they reconnect or switch
// scope.
package livefeed

import (
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parishcare/project/internal/platform/metrics"
)

var deliveredCounter = metrics.NewCounterVec(metrics.Opts{
	Name: "livefeed_changes_delivered_total",
	Help: "Change notifications fanned out to attached stream handles.",
}, []string{"collection"})

func init() {
	metrics.Default.MustRegister(deliveredCounter)
}

// Subscriber is the subset of the NATS connection the registry needs.
type Subscriber interface {
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Handle is one live listener. Wake receives a coalesced signal whenever any
// subscribed subject fires; Done closes when the handle is superseded or
// closed. Close is idempotent.
type Handle struct {
	wake chan struct{}
	done chan struct{}

	registry *Registry
	subjects []string
	once     sync.Once
}

func (h *Handle) Wake() <-chan struct{} { return h.wake }
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Close() {
	h.once.Do(func() {
		close(h.done)
		h.registry.release(h)
	})
}

func (h *Handle) notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

type scopeSub struct {
	sub     *nats.Subscription
	handles map[*Handle]struct{}
}

// Registry reference-counts one NATS subscription per subject and fans
// change signals out to every handle listening on it.
type Registry struct {
	conn Subscriber

	mu   sync.Mutex
	subs map[string]*scopeSub
}

func NewRegistry(conn Subscriber) *Registry {
	return &Registry{conn: conn, subs: make(map[string]*scopeSub)}
}

// Subscribe attaches a new handle to the given subjects, creating NATS
// subscriptions only for subjects nobody is listening on yet.
func (r *Registry) Subscribe(subjects ...string) (*Handle, error) {
	h := &Handle{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		registry: r,
		subjects: subjects,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, subject := range subjects {
		entry, ok := r.subs[subject]
		if !ok {
			entry = &scopeSub{handles: make(map[*Handle]struct{})}
			sub, err := r.conn.Subscribe(subject, func(*nats.Msg) {
				r.fanOut(subject)
			})
			if err != nil {
				r.detachLocked(h)
				return nil, err
			}
			entry.sub = sub
			r.subs[subject] = entry
		}
		entry.handles[h] = struct{}{}
	}
	return h, nil
}

func (r *Registry) fanOut(subject string) {
	r.mu.Lock()
	entry, ok := r.subs[subject]
	if !ok {
		r.mu.Unlock()
		return
	}
	handles := make([]*Handle, 0, len(entry.handles))
	for h := range entry.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	deliveredCounter.WithLabelValues(subjectCollection(subject)).Add(float64(len(handles)))
	for _, h := range handles {
		h.notify()
	}
}

// subjectCollection pulls the collection token out of a change subject
// (care.change.{shard}.{collection}.{scope}) so the delivery counter stays
// bounded regardless of how many scopes are live.
func subjectCollection(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 4 {
		return "unknown"
	}
	return parts[3]
}

func (r *Registry) release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked(h)
}

func (r *Registry) detachLocked(h *Handle) {
	for _, subject := range h.subjects {
		entry, ok := r.subs[subject]
		if !ok {
			continue
		}
		delete(entry.handles, h)
		if len(entry.handles) == 0 {
			if entry.sub != nil {
				_ = entry.sub.Unsubscribe()
			}
			delete(r.subs, subject)
		}
	}
}

// ActiveSubjects reports how many subjects currently hold a subscription.
func (r *Registry) ActiveSubjects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// UserStreams enforces one live stream per user: attaching a new handle
// closes whatever the user had before, so a reconnect or scope switch
// supersedes the old connection instead of leaking it.
type UserStreams struct {
	mu      sync.Mutex
	current map[string]*Handle
}

func NewUserStreams() *UserStreams {
	return &UserStreams{current: make(map[string]*Handle)}
}

func (u *UserStreams) Attach(userID string, h *Handle) {
	u.mu.Lock()
	previous := u.current[userID]
	u.current[userID] = h
	u.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
}

// Detach forgets the handle if it is still the user's current one. The
// caller closes the handle itself.
func (u *UserStreams) Detach(userID string, h *Handle) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current[userID] == h {
		delete(u.current, userID)
	}
}

// Debounce turns a bursty wake channel into one that fires once per quiet
// period, so a flurry of changes triggers a single snapshot reload. The
// returned stop function must be called when the consumer goes away.
func Debounce(wake <-chan struct{}, quiet time.Duration) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	stop := make(chan struct{})

	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-stop:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-wake:
				if timer == nil {
					timer = time.NewTimer(quiet)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(quiet)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(stop) }) }
}
