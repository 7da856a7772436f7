package model

import (
	"encoding/json"
	"time"
)

// LogKind tags a backend activity log entry. The set is open-ended:
// tags not listed here are kept verbatim.
type LogKind string

const (
	LogBetPlaced         LogKind = "bet_placed"
	LogBetRejected       LogKind = "bet_rejected"
	LogAutomationStarted LogKind = "automation_started"
	LogAutomationStopped LogKind = "automation_stopped"
	LogRulesUpdated      LogKind = "rules_updated"
	LogCapReached        LogKind = "cap_reached"
	LogError             LogKind = "error"
)

// LogEntry is one immutable record from the backend's activity log.
type LogEntry struct {
	Timestamp time.Time
	Kind      LogKind
	Message   string
	Data      json.RawMessage // nil when the backend sent no payload
}
