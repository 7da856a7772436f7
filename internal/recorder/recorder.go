package recorder

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operator actions journaled by the dashboard.
const (
	ActionSave  = "SAVE_RULES"
	ActionStart = "START"
	ActionStop  = "STOP"
)

// ActionEvent records one operator action and its outcome.
type ActionEvent struct {
	At      time.Time
	Action  string // ActionSave, ActionStart or ActionStop
	OK      bool
	Message string // toast text shown to the operator
	Rule    string // submitted rule set as JSON, saves only
}

// StatusSample records one applied status snapshot.
type StatusSample struct {
	At         time.Time
	Running    bool
	TotalSpent decimal.Decimal
	DailyCap   decimal.Decimal
	Remaining  decimal.Decimal
	LogCount   int
}

// Recorder persists the dashboard's history for later analysis.
type Recorder interface {
	RecordAction(evt *ActionEvent) error
	RecordStatus(s *StatusSample) error
	Close() error
}
