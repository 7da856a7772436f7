package notice

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BetSentinel/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	q := New(WithClock(clock.Now))
	defer q.Close()

	q.Show("Rules saved successfully!", model.SeveritySuccess)

	clock.Advance(2900 * time.Millisecond)
	cur := q.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "Rules saved successfully!", cur.Message)

	clock.Advance(100*time.Millisecond + time.Nanosecond)
	assert.Nil(t, q.Current())
}

func TestShow_ReplacesAndRestartsLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	q := New(WithClock(clock.Now))
	defer q.Close()

	first := q.Show("Automation started!", model.SeveritySuccess)
	clock.Advance(2 * time.Second)
	second := q.Show("Failed to stop automation", model.SeverityError)
	assert.NotEqual(t, first.ID, second.ID)

	// Past the first toast's lifetime but inside the second's.
	clock.Advance(2 * time.Second)
	cur := q.Current()
	require.NotNil(t, cur)
	assert.Equal(t, second.ID, cur.ID)
	assert.Equal(t, model.SeverityError, cur.Severity)
}

func TestOnChange_FiresOnShowAndExpiry(t *testing.T) {
	q := New()
	defer q.Close()

	var mu sync.Mutex
	var events []*model.Toast
	q.OnChange(func(t *model.Toast) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, t)
	})

	q.Show("Failed to save rules", model.SeverityError)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, Lifetime+time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, events[0])
	assert.Equal(t, "Failed to save rules", events[0].Message)
	assert.Nil(t, events[1])
	assert.Nil(t, q.Current())
}

func TestStaleTimerCannotClearNewerToast(t *testing.T) {
	q := New()
	defer q.Close()

	q.Show("one", model.SeveritySuccess)
	q.mu.Lock()
	staleGen := q.gen
	q.mu.Unlock()
	q.Show("two", model.SeveritySuccess)

	q.expire(staleGen)
	cur := q.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "two", cur.Message)
}
