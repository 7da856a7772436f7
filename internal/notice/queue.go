package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"BetSentinel/internal/model"
)

// Lifetime is how long a toast stays visible.
const Lifetime = 3 * time.Second

// Queue holds at most one toast. A newer toast replaces the current one and
// restarts the lifetime; nothing is queued behind it.
type Queue struct {
	mu       sync.Mutex
	current  *model.Toast
	gen      uint64
	timer    *time.Timer
	now      func() time.Time
	onChange func(*model.Toast)
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for visibility checks.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

// OnChange registers a callback fired when a toast is shown or expires.
// It is invoked outside the queue's lock.
func (q *Queue) OnChange(fn func(*model.Toast)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// Show replaces the current toast.
func (q *Queue) Show(message string, severity model.Severity) model.Toast {
	q.mu.Lock()
	now := q.now()
	t := model.Toast{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}
	q.gen++
	gen := q.gen
	q.current = &t
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(Lifetime, func() { q.expire(gen) })
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		shown := t
		fn(&shown)
	}
	return t
}

// Current returns the visible toast, or nil.
func (q *Queue) Current() *model.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil || !q.current.VisibleAt(q.now()) {
		return nil
	}
	t := *q.current
	return &t
}

// Close cancels the pending expiry timer.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) expire(gen uint64) {
	q.mu.Lock()
	// A newer Show owns the slot.
	if gen != q.gen || q.current == nil {
		q.mu.Unlock()
		return
	}
	q.current = nil
	q.timer = nil
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn(nil)
	}
}
