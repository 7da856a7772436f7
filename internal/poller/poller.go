package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one refresh of a feed.
type Job func(ctx context.Context)

type feed struct {
	name  string
	every time.Duration
	job   Job
}

// Poller drives independent fixed-cadence feeds. Each tick runs in its own
// goroutine; a slow run never delays or suppresses the next one.
type Poller struct {
	mu      sync.Mutex
	cron    *cron.Cron
	feeds   []feed
	chain   cron.Chain
	ctx     context.Context
	running bool
	logger  *zap.Logger
}

// New creates an idle poller.
func New(logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{logger: logger}
}

// Add registers a feed. Feeds must be added before Start.
func (p *Poller) Add(name string, every time.Duration, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("add feed %s: poller already started", name)
	}
	if every < time.Second {
		return fmt.Errorf("add feed %s: interval %s below 1s", name, every)
	}
	for _, f := range p.feeds {
		if f.name == name {
			return fmt.Errorf("add feed %s: already registered", name)
		}
	}
	p.feeds = append(p.feeds, feed{name: name, every: every, job: job})
	return nil
}

// Start schedules every feed and fires each one immediately.
// Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	cronLogger := cronLog{p.logger.Named("cron").Sugar()}
	p.chain = cron.NewChain(cron.Recover(cronLogger))
	p.cron = cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger)))
	p.ctx = ctx
	for _, f := range p.feeds {
		p.cron.Schedule(cron.Every(f.every), p.bind(f))
	}
	p.cron.Start()
	p.running = true
	p.logger.Info("poller started", zap.Int("feeds", len(p.feeds)))

	for _, f := range p.feeds {
		go p.chain.Then(p.bind(f)).Run()
	}
}

// Stop cancels all future ticks. In-flight jobs are left to finish; callers
// are expected to discard their results. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cron.Stop()
	p.running = false
	p.logger.Info("poller stopped")
}

// RunNow fires one feed out of cadence. It returns false if the poller is not
// running or the feed is unknown.
func (p *Poller) RunNow(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}
	for _, f := range p.feeds {
		if f.name == name {
			go p.chain.Then(p.bind(f)).Run()
			return true
		}
	}
	return false
}

// Running reports whether ticks are scheduled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// bind closes a feed over the poller context. Panics are recovered by the
// cron.Recover wrapper, both on ticks and on out-of-cadence runs.
func (p *Poller) bind(f feed) cron.Job {
	ctx := p.ctx
	return cron.FuncJob(func() { f.job(ctx) })
}

// cronLog routes cron's logging through zap.
type cronLog struct {
	s *zap.SugaredLogger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
