package notifier

import (
	"context"
	"fmt"
	"html"
	"sync"

	"go.uber.org/zap"

	"BetSentinel/internal/model"
	"BetSentinel/internal/view"
)

// ToastRelay forwards each new toast to the chat once. Observe is called from
// session notifications and never blocks on the network.
type ToastRelay struct {
	send   func(ctx context.Context, text string) error
	queue  chan model.Toast
	logger *zap.Logger

	mu     sync.Mutex
	lastID string
}

func NewToastRelay(send func(ctx context.Context, text string) error, logger *zap.Logger) *ToastRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToastRelay{
		send:   send,
		queue:  make(chan model.Toast, 16),
		logger: logger.Named("relay"),
	}
}

// Observe queues the snapshot's toast if it has not been seen before.
func (r *ToastRelay) Observe(snap view.Snapshot) {
	t := snap.Toast
	if t == nil {
		return
	}
	r.mu.Lock()
	seen := t.ID == r.lastID
	r.lastID = t.ID
	r.mu.Unlock()
	if seen {
		return
	}
	select {
	case r.queue <- *t:
	default:
		r.logger.Warn("toast relay full, dropping", zap.String("message", t.Message))
	}
}

// Run sends queued toasts until ctx is done.
func (r *ToastRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.queue:
			if err := r.send(ctx, FormatToast(t)); err != nil {
				r.logger.Error("forward toast", zap.Error(err))
			}
		}
	}
}

// FormatToast renders a toast as a chat line.
func FormatToast(t model.Toast) string {
	icon := "✅"
	if t.Severity == model.SeverityError {
		icon = "❌"
	}
	return fmt.Sprintf("%s %s", icon, html.EscapeString(t.Message))
}
