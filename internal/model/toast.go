package model

import "time"

// Severity of an operator-facing notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Toast is a transient notification reporting the outcome of an operator action.
type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VisibleAt reports whether the toast is still shown at t.
func (t Toast) VisibleAt(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
