package view

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// Category is the display style of a log line.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryDanger  Category = "danger"
	CategoryInfo    Category = "info"
	CategoryWarning Category = "warning"
	CategoryNeutral Category = "neutral"
)

// Shown while no status has been fetched yet.
var (
	defaultSpent    = "0.00"
	defaultDailyCap = "1000.00"
)

// Input is everything the dashboard knows at one instant.
type Input struct {
	Status          *model.Status
	StatusUpdatedAt time.Time
	StatusStale     bool
	Logs            []model.LogEntry
	LogsStale       bool
	Overview        model.Overview
	Draft           model.Rule
	Dirty           bool
	Saving          bool
	Toast           *model.Toast
}

// Snapshot is the display-ready state of the dashboard.
type Snapshot struct {
	State           model.RunState `json:"state"`
	CanStart        bool           `json:"can_start"`
	CanStop         bool           `json:"can_stop"`
	Spent           string         `json:"spent"`
	DailyCap        string         `json:"daily_cap"`
	Remaining       string         `json:"remaining"`
	LogCount        int            `json:"log_count"`
	StatusStale     bool           `json:"status_stale"`
	StatusUpdatedAt *time.Time     `json:"status_updated_at,omitempty"`
	Logs            []LogLine      `json:"logs"`
	LogsStale       bool           `json:"logs_stale"`
	Draft           RuleView       `json:"draft"`
	Dirty           bool           `json:"dirty"`
	Saving          bool           `json:"saving"`
	Toast           *model.Toast   `json:"toast"`
	Overview        OverviewView   `json:"overview"`
}

// RuleView renders a rule set as editor field values.
type RuleView struct {
	MinBet    string   `json:"min_bet"`
	MaxBet    string   `json:"max_bet"`
	DailyCap  string   `json:"daily_cap"`
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
	Enabled   bool     `json:"enabled"`
}

// LogLine is one rendered activity log entry.
type LogLine struct {
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Category Category  `json:"category"`
	Message  string    `json:"message"`
	Data     string    `json:"data,omitempty"`
}

// EventView is one overview event with odds as text.
type EventView struct {
	Match string `json:"match"`
	Home  string `json:"home"`
	Draw  string `json:"draw"`
	Away  string `json:"away"`
}

// OverviewView is the backend-wide health and event list.
type OverviewView struct {
	Health string      `json:"health"`
	Events []EventView `json:"events"`
}

// Build derives the snapshot. It has no side effects.
func Build(in Input) Snapshot {
	state := model.RunStateOf(in.Status)
	s := Snapshot{
		State:       state,
		CanStart:    state != model.RunStateRunning,
		CanStop:     state == model.RunStateRunning,
		Spent:       defaultSpent,
		DailyCap:    defaultDailyCap,
		Remaining:   defaultSpent,
		StatusStale: in.StatusStale,
		Logs:        make([]LogLine, 0, len(in.Logs)),
		LogsStale:   in.LogsStale,
		Draft:       RuleViewOf(in.Draft),
		Dirty:       in.Dirty,
		Saving:      in.Saving,
		Toast:       in.Toast,
		Overview:    overviewOf(in.Overview),
	}
	if in.Status != nil {
		s.Spent = Money(in.Status.TotalSpent)
		s.DailyCap = Money(in.Status.DailyCap)
		s.Remaining = Money(ClampRemaining(in.Status.Remaining))
		s.LogCount = in.Status.LogCount
		if !in.StatusUpdatedAt.IsZero() {
			at := in.StatusUpdatedAt
			s.StatusUpdatedAt = &at
		}
	}
	for _, e := range in.Logs {
		s.Logs = append(s.Logs, LogLine{
			Time:     e.Timestamp,
			Kind:     string(e.Kind),
			Category: CategoryOf(e.Kind),
			Message:  e.Message,
			Data:     prettyJSON(e.Data),
		})
	}
	return s
}

// ClampRemaining never lets a negative budget reach the display.
func ClampRemaining(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Money formats an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CategoryOf maps a log kind to its display style. Unrecognized kinds are
// neutral, never dropped.
func CategoryOf(kind model.LogKind) Category {
	switch kind {
	case model.LogBetPlaced:
		return CategorySuccess
	case model.LogBetRejected:
		return CategoryDanger
	case model.LogAutomationStarted:
		return CategoryInfo
	case model.LogAutomationStopped:
		return CategoryWarning
	default:
		return CategoryNeutral
	}
}

// RuleViewOf renders rule values the way the editor shows them.
func RuleViewOf(r model.Rule) RuleView {
	return RuleView{
		MinBet:    r.MinBet.String(),
		MaxBet:    r.MaxBet.String(),
		DailyCap:  r.DailyCap.String(),
		Whitelist: append([]string{}, r.Whitelist...),
		Blacklist: append([]string{}, r.Blacklist...),
		Enabled:   r.Enabled,
	}
}

func overviewOf(o model.Overview) OverviewView {
	v := OverviewView{Health: o.Health, Events: make([]EventView, 0, len(o.Events))}
	if v.Health == "" {
		v.Health = model.HealthLoading
	}
	for _, e := range o.Events {
		v.Events = append(v.Events, EventView{
			Match: e.Match,
			Home:  e.Odds.Home.String(),
			Draw:  e.Odds.Draw.String(),
			Away:  e.Odds.Away.String(),
		})
	}
	return v
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
