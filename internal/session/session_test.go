package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BetSentinel/internal/editor"
	"BetSentinel/internal/model"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/remote"
	"BetSentinel/internal/view"
)

type fakeBackend struct {
	mu        sync.Mutex
	statusFn  func(ctx context.Context) (*model.Status, error)
	status    *model.Status
	logs      []model.LogEntry
	logsErr   error
	logsFn    func(ctx context.Context) ([]model.LogEntry, error)
	healthFn  func(ctx context.Context) (string, error)
	health    string
	healthErr error
	events    []model.Event
	saveErr   error
	saved     []model.Rule
	runErr    error
	runCalls  []bool
}

func (f *fakeBackend) FetchStatus(ctx context.Context) (*model.Status, error) {
	f.mu.Lock()
	fn, st := f.statusFn, f.status
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	if st == nil {
		return nil, &remote.NetworkError{Op: "fetch status", Err: errors.New("connection refused")}
	}
	c := *st
	return &c, nil
}

func (f *fakeBackend) FetchLogs(ctx context.Context, _ int) ([]model.LogEntry, error) {
	f.mu.Lock()
	fn, logs, err := f.logsFn, f.logs, f.logsErr
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return logs, err
}

func (f *fakeBackend) SaveRules(_ context.Context, rule model.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rule)
	return f.saveErr
}

func (f *fakeBackend) SetRunning(_ context.Context, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls = append(f.runCalls, running)
	return f.runErr
}

func (f *fakeBackend) FetchHealth(ctx context.Context) (string, error) {
	f.mu.Lock()
	fn, health, err := f.healthFn, f.health, f.healthErr
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return health, err
}

func (f *fakeBackend) FetchEvents(_ context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, nil
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.runCalls...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	actions []recorder.ActionEvent
	samples []recorder.StatusSample
}

func (r *fakeRecorder) RecordAction(evt *recorder.ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, *evt)
	return nil
}

func (r *fakeRecorder) RecordStatus(s *recorder.StatusSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, *s)
	return nil
}

func (r *fakeRecorder) Close() error { return nil }

func serverStatus(running bool) *model.Status {
	rules := model.DefaultRule()
	rules.Whitelist = []string{"Lakers"}
	return &model.Status{
		Running:    running,
		TotalSpent: decimal.NewFromInt(250),
		DailyCap:   decimal.NewFromInt(1000),
		Remaining:  decimal.NewFromInt(750),
		Rules:      rules,
		LogCount:   4,
	}
}

var slow = Intervals{Status: time.Hour, Logs: time.Hour, Overview: time.Hour}

// mounted returns a session whose feeds fired once on mount.
func mounted(t *testing.T, fb *fakeBackend, opts ...Option) *Session {
	t.Helper()
	s := New(fb, append([]Option{WithIntervals(slow)}, opts...)...)
	require.NoError(t, s.Mount(context.Background()))
	t.Cleanup(s.Unmount)
	return s
}

// active marks s mounted without starting the poller so tests drive the
// feeds by hand.
func active(s *Session) {
	s.mu.Lock()
	s.active = true
	s.cancel = func() {}
	s.mu.Unlock()
}

func waitState(t *testing.T, s *Session, want model.RunState) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().State == want }, 2*time.Second, 10*time.Millisecond)
}

func TestMount_FirstFetchResolvesPending(t *testing.T) {
	fb := &fakeBackend{status: serverStatus(true), health: "healthy"}
	s := mounted(t, fb)

	waitState(t, s, model.RunStateRunning)
	require.Eventually(t, func() bool { return s.Snapshot().Overview.Health == "healthy" }, 2*time.Second, 10*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, "250.00", snap.Spent)
	assert.Equal(t, "750.00", snap.Remaining)
	assert.Equal(t, []string{"Lakers"}, snap.Draft.Whitelist)
	assert.False(t, snap.Dirty)
}

func TestStart_DisabledWhileRunningSendsNothing(t *testing.T) {
	fb := &fakeBackend{status: serverStatus(true)}
	s := mounted(t, fb)
	waitState(t, s, model.RunStateRunning)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrActionDisabled)
	assert.Empty(t, fb.calls())

	require.NoError(t, s.StopAutomation(context.Background()))
	assert.Equal(t, []bool{false}, fb.calls())
	toast := s.Snapshot().Toast
	require.NotNil(t, toast)
	assert.Equal(t, MsgStopped, toast.Message)
	assert.Equal(t, model.SeveritySuccess, toast.Severity)
}

func TestPending_StartAllowedStopDisabled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fb := &fakeBackend{statusFn: func(ctx context.Context) (*model.Status, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("released")
	}}
	s := mounted(t, fb)
	assert.Equal(t, model.RunStatePending, s.Snapshot().State)

	assert.ErrorIs(t, s.StopAutomation(context.Background()), ErrActionDisabled)
	assert.Empty(t, fb.calls())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []bool{true}, fb.calls())
	assert.Equal(t, MsgStarted, s.Snapshot().Toast.Message)
}

func TestSetRunning_FailureToasts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"precondition message", &remote.PreconditionError{Message: "Automation already running"}, "Automation already running"},
		{"server message", &remote.NetworkError{Op: "start automation", StatusCode: 500, Message: "engine crashed"}, "engine crashed"},
		{"no message", &remote.NetworkError{Op: "start automation", Err: errors.New("connection refused")}, MsgStartFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{status: serverStatus(false), runErr: tt.err}
			s := mounted(t, fb)
			waitState(t, s, model.RunStateStopped)

			err := s.Start(context.Background())
			require.Error(t, err)
			toast := s.Snapshot().Toast
			require.NotNil(t, toast)
			assert.Equal(t, tt.want, toast.Message)
			assert.Equal(t, model.SeverityError, toast.Severity)
			assert.Equal(t, model.RunStateStopped, s.Snapshot().State)
		})
	}
}

func TestStop_FailureFallbackMessage(t *testing.T) {
	fb := &fakeBackend{status: serverStatus(true), runErr: &remote.NetworkError{Op: "stop automation", StatusCode: 502}}
	s := mounted(t, fb)
	waitState(t, s, model.RunStateRunning)

	require.Error(t, s.StopAutomation(context.Background()))
	assert.Equal(t, MsgStopFailed, s.Snapshot().Toast.Message)
}

func TestActions_RequireMount(t *testing.T) {
	s := New(&fakeBackend{})
	assert.ErrorIs(t, s.Save(context.Background()), ErrNotMounted)
	assert.ErrorIs(t, s.Start(context.Background()), ErrNotMounted)
	assert.ErrorIs(t, s.StopAutomation(context.Background()), ErrNotMounted)
}

func TestStatus_StaleResponseNeverOverwritesNewer(t *testing.T) {
	started := make(chan struct{}, 2)
	first := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
	)
	fb := &fakeBackend{}
	fb.statusFn = func(context.Context) (*model.Status, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		started <- struct{}{}
		if n == 1 {
			<-first
			return serverStatus(false), nil
		}
		return serverStatus(true), nil
	}
	s := New(fb, WithIntervals(slow))
	active(s)

	done := make(chan struct{})
	go func() {
		s.refreshStatus(context.Background())
		close(done)
	}()
	<-started

	s.refreshStatus(context.Background())
	assert.Equal(t, model.RunStateRunning, s.Snapshot().State)

	close(first)
	<-done
	assert.Equal(t, model.RunStateRunning, s.Snapshot().State, "older response must be discarded")
}

func TestUnmount_DiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	fb := &fakeBackend{statusFn: func(context.Context) (*model.Status, error) {
		<-release
		return serverStatus(true), nil
	}}
	s := New(fb, WithIntervals(slow))
	active(s)

	done := make(chan struct{})
	go func() {
		s.refreshStatus(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.issued[feedStatus] == 1
	}, time.Second, 5*time.Millisecond)

	s.Unmount()
	close(release)
	<-done

	assert.Equal(t, model.RunStatePending, s.Snapshot().State)
	assert.False(t, s.Mounted())
}

func TestRemount_DiscardsResultsFromBeforeUnmount(t *testing.T) {
	release := make(chan struct{})
	fb := &fakeBackend{statusFn: func(context.Context) (*model.Status, error) {
		<-release
		return serverStatus(true), nil
	}}
	s := New(fb, WithIntervals(slow))
	active(s)

	done := make(chan struct{})
	go func() {
		s.refreshStatus(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.issued[feedStatus] == 1
	}, time.Second, 5*time.Millisecond)

	s.Unmount()
	active(s)
	close(release)
	<-done

	snap := s.Snapshot()
	assert.Equal(t, model.RunStatePending, snap.State)
	assert.False(t, snap.StatusStale)

	// Requests issued in the new mount apply normally.
	s.refreshStatus(context.Background())
	assert.Equal(t, model.RunStateRunning, s.Snapshot().State)
}

// outOfOrder runs refresh twice, letting the second call finish before the
// first one returns.
func outOfOrder(t *testing.T, refresh func(context.Context), started <-chan struct{}, releaseFirst chan<- struct{}) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		refresh(context.Background())
		close(done)
	}()
	<-started

	refresh(context.Background())
	close(releaseFirst)
	<-done
}

func TestLogs_StaleResponseNeverOverwritesNewer(t *testing.T) {
	started := make(chan struct{}, 2)
	first := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
	)
	fb := &fakeBackend{}
	fb.logsFn = func(context.Context) ([]model.LogEntry, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		started <- struct{}{}
		if n == 1 {
			<-first
			return []model.LogEntry{{Kind: model.LogBetPlaced, Message: "old"}}, nil
		}
		return []model.LogEntry{{Kind: model.LogBetRejected, Message: "new"}}, nil
	}
	s := New(fb, WithIntervals(slow))
	active(s)

	outOfOrder(t, s.refreshLogs, started, first)

	snap := s.Snapshot()
	require.Len(t, snap.Logs, 1)
	assert.Equal(t, "new", snap.Logs[0].Message)
}

func TestOverview_StaleResponseNeverOverwritesNewer(t *testing.T) {
	started := make(chan struct{}, 2)
	first := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
	)
	fb := &fakeBackend{}
	fb.healthFn = func(context.Context) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		started <- struct{}{}
		if n == 1 {
			<-first
			return "", errors.New("timeout")
		}
		return "healthy", nil
	}
	s := New(fb, WithIntervals(slow))
	active(s)

	outOfOrder(t, s.refreshOverview, started, first)

	assert.Equal(t, "healthy", s.Snapshot().Overview.Health, "late failure must not mark newer health as error")
}

func TestSave_InFlightStatusCannotResetDraft(t *testing.T) {
	release := make(chan struct{})
	old := serverStatus(false)
	fb := &fakeBackend{}
	fb.statusFn = func(context.Context) (*model.Status, error) {
		<-release
		return old, nil
	}
	s := New(fb, WithIntervals(slow))
	active(s)

	require.NoError(t, s.SetField(editor.FieldMaxBet, "250"))
	done := make(chan struct{})
	go func() {
		s.refreshStatus(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.issued[feedStatus] == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Save(context.Background()))
	close(release)
	<-done

	snap := s.Snapshot()
	assert.Equal(t, "250", snap.Draft.MaxBet, "pre-save status must not clobber the saved draft")
	assert.False(t, snap.Dirty)
	assert.Equal(t, model.RunStateStopped, snap.State, "status figures still apply")

	// A fetch issued after the save reconciles again.
	updated := serverStatus(false)
	updated.Rules.MaxBet = decimal.NewFromInt(300)
	fb.set(func(f *fakeBackend) {
		f.statusFn = func(context.Context) (*model.Status, error) { return updated, nil }
	})
	s.refreshStatus(context.Background())
	assert.Equal(t, "300", s.Snapshot().Draft.MaxBet)
}

func TestSave_SuccessToastAndBody(t *testing.T) {
	fb := &fakeBackend{status: serverStatus(false)}
	rec := &fakeRecorder{}
	s := mounted(t, fb, WithRecorder(rec))
	waitState(t, s, model.RunStateStopped)

	_, err := s.AddToList(editor.ListBlacklist, " Heat ")
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background()))

	fb.mu.Lock()
	require.Len(t, fb.saved, 1)
	assert.Equal(t, []string{"Heat"}, fb.saved[0].Blacklist)
	fb.mu.Unlock()

	snap := s.Snapshot()
	require.NotNil(t, snap.Toast)
	assert.Equal(t, MsgSaved, snap.Toast.Message)
	assert.False(t, snap.Saving)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.actions, 1)
	assert.Equal(t, recorder.ActionSave, rec.actions[0].Action)
	assert.True(t, rec.actions[0].OK)
	assert.Contains(t, rec.actions[0].Rule, `"blacklist":["Heat"]`)
	assert.NotEmpty(t, rec.samples)
}

func TestSave_FailureKeepsDraft(t *testing.T) {
	fb := &fakeBackend{
		status:  serverStatus(false),
		saveErr: &remote.ValidationError{Message: "min_bet must be positive"},
	}
	s := mounted(t, fb)
	waitState(t, s, model.RunStateStopped)

	require.NoError(t, s.SetField(editor.FieldMinBet, "-5"))
	err := s.Save(context.Background())
	require.Error(t, err)

	var ve *remote.ValidationError
	assert.ErrorAs(t, err, &ve)
	snap := s.Snapshot()
	assert.Equal(t, "-5", snap.Draft.MinBet)
	assert.True(t, snap.Dirty)
	require.NotNil(t, snap.Toast)
	assert.Equal(t, MsgSaveFailed, snap.Toast.Message)
	assert.Equal(t, model.SeverityError, snap.Toast.Severity)
}

func TestStatusFailure_KeepsLastSnapshot(t *testing.T) {
	fb := &fakeBackend{status: serverStatus(true)}
	s := New(fb, WithIntervals(slow))
	active(s)

	s.refreshStatus(context.Background())
	fb.set(func(f *fakeBackend) { f.status = nil })
	s.refreshStatus(context.Background())

	snap := s.Snapshot()
	assert.True(t, snap.StatusStale)
	assert.Equal(t, model.RunStateRunning, snap.State)
	assert.Equal(t, "250.00", snap.Spent)

	fb.set(func(f *fakeBackend) { f.status = serverStatus(false) })
	s.refreshStatus(context.Background())
	assert.False(t, s.Snapshot().StatusStale)
}

func TestLogs_FailureKeepsEntries(t *testing.T) {
	fb := &fakeBackend{logs: []model.LogEntry{{Kind: model.LogBetPlaced, Message: "Bet placed"}}}
	s := New(fb, WithIntervals(slow))
	active(s)

	s.refreshLogs(context.Background())
	fb.set(func(f *fakeBackend) { f.logsErr = errors.New("timeout") })
	s.refreshLogs(context.Background())

	snap := s.Snapshot()
	assert.True(t, snap.LogsStale)
	require.Len(t, snap.Logs, 1)
	assert.Equal(t, view.CategorySuccess, snap.Logs[0].Category)
}

func TestOverview_HealthLifecycle(t *testing.T) {
	fb := &fakeBackend{
		health: "healthy",
		events: []model.Event{{Match: "Lakers vs Heat"}},
	}
	s := New(fb, WithIntervals(slow))
	active(s)
	assert.Equal(t, model.HealthLoading, s.Snapshot().Overview.Health)

	s.refreshOverview(context.Background())
	snap := s.Snapshot()
	assert.Equal(t, "healthy", snap.Overview.Health)
	require.Len(t, snap.Overview.Events, 1)

	fb.set(func(f *fakeBackend) { f.healthErr = errors.New("down") })
	s.refreshOverview(context.Background())
	snap = s.Snapshot()
	assert.Equal(t, model.HealthError, snap.Overview.Health)
	assert.Len(t, snap.Overview.Events, 1, "events are retained")
}

func TestSubscribe(t *testing.T) {
	s := New(&fakeBackend{})

	var (
		mu   sync.Mutex
		seen []view.Snapshot
	)
	cancel := s.Subscribe(func(snap view.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, snap)
	})

	require.NoError(t, s.SetField(editor.FieldDailyCap, "2000"))
	cancel()
	s.SetEnabled(true)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "2000", seen[0].Draft.DailyCap)
	assert.True(t, seen[0].Dirty)
}
