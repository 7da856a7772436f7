package model

import "github.com/shopspring/decimal"

// Status is the backend's authoritative run state. Remaining is kept exactly
// as transmitted and may be negative.
type Status struct {
	Running    bool
	TotalSpent decimal.Decimal
	DailyCap   decimal.Decimal
	Remaining  decimal.Decimal
	Rules      Rule
	LogCount   int
}

// RunState is the automation state as observed by the dashboard.
type RunState string

const (
	RunStatePending RunState = "PENDING"
	RunStateRunning RunState = "RUNNING"
	RunStateStopped RunState = "STOPPED"
)

// RunStateOf maps a possibly-absent status to its observed state.
// A nil status means no fetch has succeeded yet.
func RunStateOf(s *Status) RunState {
	switch {
	case s == nil:
		return RunStatePending
	case s.Running:
		return RunStateRunning
	default:
		return RunStateStopped
	}
}
