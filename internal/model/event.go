package model

import "github.com/shopspring/decimal"

// Odds holds 1X2 decimal odds for a match.
type Odds struct {
	Home decimal.Decimal
	Draw decimal.Decimal
	Away decimal.Decimal
}

// Event is an upcoming match listed on the backend's overview feed.
type Event struct {
	Match string
	Odds  Odds
}

// Health values reported before or instead of a backend status string.
const (
	HealthLoading = "loading"
	HealthError   = "error"
)

// Overview is the backend-wide health string plus its current events.
type Overview struct {
	Health string
	Events []Event
}
