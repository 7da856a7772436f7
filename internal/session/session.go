package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/editor"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notice"
	"BetSentinel/internal/poller"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/remote"
	"BetSentinel/internal/view"
)

var (
	// ErrActionDisabled is returned when the control state does not allow the
	// requested action. No request is sent.
	ErrActionDisabled = errors.New("action disabled")
	// ErrNotMounted is returned by actions while the session is unmounted.
	ErrNotMounted = errors.New("session not mounted")
)

// Operator-facing toast texts.
const (
	MsgSaved       = "Rules saved successfully!"
	MsgSaveFailed  = "Failed to save rules"
	MsgStarted     = "Automation started!"
	MsgStartFailed = "Failed to start automation"
	MsgStopped     = "Automation stopped!"
	MsgStopFailed  = "Failed to stop automation"
)

// FailureText is the operator-facing text for a failed backend action. Save
// failures always read the same; start and stop prefer the backend's message.
func FailureText(action string, err error) string {
	var fallback string
	switch action {
	case recorder.ActionSave:
		return MsgSaveFailed
	case recorder.ActionStart:
		fallback = MsgStartFailed
	default:
		fallback = MsgStopFailed
	}
	if msg := remote.OperatorMessage(err); msg != "" {
		return msg
	}
	return fallback
}

const (
	feedStatus   = "status"
	feedLogs     = "logs"
	feedOverview = "overview"
)

// Intervals are the refresh cadences of the three feeds.
type Intervals struct {
	Status   time.Duration
	Logs     time.Duration
	Overview time.Duration
}

// DefaultIntervals matches the backend dashboard's refresh rates.
var DefaultIntervals = Intervals{
	Status:   5 * time.Second,
	Logs:     10 * time.Second,
	Overview: 30 * time.Second,
}

// DefaultLogLimit is how many log entries each refresh requests.
const DefaultLogLimit = 50

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

func WithRecorder(r recorder.Recorder) Option { return func(s *Session) { s.recorder = r } }

func WithIntervals(iv Intervals) Option { return func(s *Session) { s.intervals = iv } }

func WithLogLimit(n int) Option { return func(s *Session) { s.logLimit = n } }

// WithClock overrides the time source for timestamps and toast visibility.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// Session is one mounted dashboard view: it polls the backend, holds the rule
// draft and the latest snapshots, and runs operator actions. All state is
// guarded by mu; network calls happen outside it.
type Session struct {
	backend   remote.Backend
	editor    *editor.Editor
	notices   *notice.Queue
	poller    *poller.Poller
	recorder  recorder.Recorder
	logger    *zap.Logger
	intervals Intervals
	logLimit  int
	now       func() time.Time

	mu          sync.Mutex
	active      bool
	registered  bool
	generation  uint64
	cancel      context.CancelFunc
	status      *model.Status
	statusAt    time.Time
	statusStale bool
	logs        []model.LogEntry
	logsStale   bool
	overview    model.Overview
	issued      map[string]uint64
	applied     map[string]uint64
	rulesFloor  uint64

	subMu   sync.Mutex
	subs    map[int]func(view.Snapshot)
	nextSub int
}

// New creates an unmounted session against backend.
func New(backend remote.Backend, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		editor:    editor.New(),
		recorder:  recorder.NewNoopRecorder(),
		logger:    zap.NewNop(),
		intervals: DefaultIntervals,
		logLimit:  DefaultLogLimit,
		now:       time.Now,
		overview:  model.Overview{Health: model.HealthLoading, Events: []model.Event{}},
		issued:    map[string]uint64{},
		applied:   map[string]uint64{},
		subs:      map[int]func(view.Snapshot){},
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("session")
	s.notices = notice.New(notice.WithClock(s.now))
	s.notices.OnChange(func(*model.Toast) { s.notify() })
	s.poller = poller.New(s.logger)
	return s
}

// Mount starts polling. Every feed fires immediately, then on its cadence.
// Mounting an active session is a no-op.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	if !s.registered {
		feeds := []struct {
			name  string
			every time.Duration
			job   poller.Job
		}{
			{feedStatus, s.intervals.Status, s.refreshStatus},
			{feedLogs, s.intervals.Logs, s.refreshLogs},
			{feedOverview, s.intervals.Overview, s.refreshOverview},
		}
		for _, f := range feeds {
			if err := s.poller.Add(f.name, f.every, f.job); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("mount: %w", err)
			}
		}
		s.registered = true
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.active = true
	s.mu.Unlock()

	s.poller.Start(ctx)
	s.logger.Info("session mounted")
	return nil
}

// Unmount stops all timers and cancels in-flight requests. Results that
// arrive afterwards are discarded.
func (s *Session) Unmount() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.generation++
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	s.poller.Stop()
	cancel()
	s.notices.Close()
	s.logger.Info("session unmounted")
}

// Mounted reports whether the session is polling.
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// token identifies one feed request: its sequence number within the feed and
// the mount generation it was issued in.
type token struct {
	seq uint64
	gen uint64
}

// begin issues a token for feed, or reports false if unmounted.
func (s *Session) begin(feed string) (token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return token{}, false
	}
	s.issued[feed]++
	return token{seq: s.issued[feed], gen: s.generation}, true
}

// fresh reports whether a result for tok may still be applied. Results issued
// before the last Unmount never apply, even after a remount. Callers hold mu.
func (s *Session) fresh(feed string, tok token) bool {
	return s.active && tok.gen == s.generation && tok.seq > s.applied[feed]
}

func (s *Session) refreshStatus(ctx context.Context) {
	tok, ok := s.begin(feedStatus)
	if !ok {
		return
	}
	st, err := s.backend.FetchStatus(ctx)

	s.mu.Lock()
	if !s.fresh(feedStatus, tok) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.statusStale = true
		s.mu.Unlock()
		s.logger.Warn("status refresh failed", zap.Uint64("seq", tok.seq), zap.Error(err))
		s.notify()
		return
	}
	s.applied[feedStatus] = tok.seq
	s.status = st
	s.statusAt = s.now()
	s.statusStale = false
	// A fetch issued before the last save completed may carry the old rules.
	if tok.seq > s.rulesFloor {
		s.editor.LoadFromServer(st.Rules)
	}
	at := s.statusAt
	s.mu.Unlock()

	if err := s.recorder.RecordStatus(&recorder.StatusSample{
		At:         at,
		Running:    st.Running,
		TotalSpent: st.TotalSpent,
		DailyCap:   st.DailyCap,
		Remaining:  st.Remaining,
		LogCount:   st.LogCount,
	}); err != nil {
		s.logger.Error("record status", zap.Error(err))
	}
	s.notify()
}

func (s *Session) refreshLogs(ctx context.Context) {
	tok, ok := s.begin(feedLogs)
	if !ok {
		return
	}
	logs, err := s.backend.FetchLogs(ctx, s.logLimit)

	s.mu.Lock()
	if !s.fresh(feedLogs, tok) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.logsStale = true
		s.mu.Unlock()
		s.logger.Warn("logs refresh failed", zap.Uint64("seq", tok.seq), zap.Error(err))
		s.notify()
		return
	}
	s.applied[feedLogs] = tok.seq
	s.logs = logs
	s.logsStale = false
	s.mu.Unlock()
	s.notify()
}

func (s *Session) refreshOverview(ctx context.Context) {
	tok, ok := s.begin(feedOverview)
	if !ok {
		return
	}
	health, err := s.backend.FetchHealth(ctx)
	var events []model.Event
	if err == nil {
		events, err = s.backend.FetchEvents(ctx)
	}

	s.mu.Lock()
	if !s.fresh(feedOverview, tok) {
		s.mu.Unlock()
		return
	}
	s.applied[feedOverview] = tok.seq
	if err != nil {
		// Events from the last good refresh stay visible.
		s.overview.Health = model.HealthError
		s.mu.Unlock()
		s.logger.Warn("overview refresh failed", zap.Uint64("seq", tok.seq), zap.Error(err))
		s.notify()
		return
	}
	s.overview = model.Overview{Health: health, Events: events}
	s.mu.Unlock()
	s.notify()
}

// Save submits the draft. The draft is left as is on failure.
func (s *Session) Save(ctx context.Context) error {
	if !s.Mounted() {
		return ErrNotMounted
	}
	rule, err := s.editor.BeginSave()
	if err != nil {
		return err
	}
	s.notify()

	err = s.backend.SaveRules(ctx, rule)

	s.mu.Lock()
	s.editor.EndSave(rule, err == nil)
	if err == nil {
		s.rulesFloor = s.issued[feedStatus]
	}
	s.mu.Unlock()

	evt := &recorder.ActionEvent{At: s.now(), Action: recorder.ActionSave, OK: err == nil, Rule: ruleJSON(rule)}
	if err != nil {
		s.logger.Warn("save rules failed", zap.Error(err))
		evt.Message = FailureText(recorder.ActionSave, err)
		s.record(evt)
		s.toast(evt.Message, model.SeverityError)
		return fmt.Errorf("save rules: %w", err)
	}

	s.logger.Info("rules saved")
	evt.Message = MsgSaved
	s.record(evt)
	s.toast(MsgSaved, model.SeveritySuccess)
	s.poller.RunNow(feedStatus)
	return nil
}

// Start asks the backend to start automation. Refused while running.
func (s *Session) Start(ctx context.Context) error {
	return s.setRunning(ctx, true)
}

// StopAutomation asks the backend to stop automation. Refused unless running.
func (s *Session) StopAutomation(ctx context.Context) error {
	return s.setRunning(ctx, false)
}

func (s *Session) setRunning(ctx context.Context, running bool) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrNotMounted
	}
	state := model.RunStateOf(s.status)
	s.mu.Unlock()

	action, okMsg := recorder.ActionStart, MsgStarted
	allowed := state != model.RunStateRunning
	if !running {
		action, okMsg = recorder.ActionStop, MsgStopped
		allowed = state == model.RunStateRunning
	}
	if !allowed {
		return fmt.Errorf("%w: %s while %s", ErrActionDisabled, action, state)
	}

	err := s.backend.SetRunning(ctx, running)
	evt := &recorder.ActionEvent{At: s.now(), Action: action, OK: err == nil}
	if err != nil {
		msg := FailureText(action, err)
		s.logger.Warn("automation control failed", zap.String("action", action), zap.Error(err))
		evt.Message = msg
		s.record(evt)
		s.toast(msg, model.SeverityError)
		return fmt.Errorf("%s: %w", action, err)
	}

	s.logger.Info("automation control applied", zap.String("action", action))
	evt.Message = okMsg
	s.record(evt)
	s.toast(okMsg, model.SeveritySuccess)
	s.poller.RunNow(feedStatus)
	s.poller.RunNow(feedLogs)
	return nil
}

// SetField edits one scalar of the draft.
func (s *Session) SetField(f editor.Field, value string) error {
	if err := s.editor.SetField(f, value); err != nil {
		return err
	}
	s.notify()
	return nil
}

// SetEnabled edits the draft's master switch.
func (s *Session) SetEnabled(enabled bool) {
	s.editor.SetEnabled(enabled)
	s.notify()
}

// AddToList appends a team to a draft list. Blank input is ignored.
func (s *Session) AddToList(l editor.List, item string) (bool, error) {
	added, err := s.editor.Add(l, item)
	if added {
		s.notify()
	}
	return added, err
}

// RemoveFromList drops every exact match of item from a draft list.
func (s *Session) RemoveFromList(l editor.List, item string) (int, error) {
	n, err := s.editor.Remove(l, item)
	if n > 0 {
		s.notify()
	}
	return n, err
}

// Snapshot renders the current state.
func (s *Session) Snapshot() view.Snapshot {
	s.mu.Lock()
	in := view.Input{
		StatusUpdatedAt: s.statusAt,
		StatusStale:     s.statusStale,
		Logs:            s.logs,
		LogsStale:       s.logsStale,
		Overview:        s.overview,
	}
	if s.status != nil {
		st := *s.status
		in.Status = &st
	}
	s.mu.Unlock()

	in.Draft, in.Dirty, in.Saving = s.editor.State()
	in.Toast = s.notices.Current()
	return view.Build(in)
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func removes the subscription.
func (s *Session) Subscribe(fn func(view.Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	fns := make([]func(view.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	if len(fns) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) toast(msg string, sev model.Severity) {
	if !s.Mounted() {
		return
	}
	s.notices.Show(msg, sev)
}

func (s *Session) record(evt *recorder.ActionEvent) {
	if err := s.recorder.RecordAction(evt); err != nil {
		s.logger.Error("record action", zap.String("action", evt.Action), zap.Error(err))
	}
}

func ruleJSON(r model.Rule) string {
	b, err := json.Marshal(view.RuleViewOf(r))
	if err != nil {
		return ""
	}
	return string(b)
}
