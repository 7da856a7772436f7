package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

// wireRule is the JSON shape of a rule set in both directions.
type wireRule struct {
	MinBet    json.Number `json:"min_bet"`
	MaxBet    json.Number `json:"max_bet"`
	DailyCap  json.Number `json:"daily_cap"`
	Whitelist []string    `json:"whitelist"`
	Blacklist []string    `json:"blacklist"`
	Enabled   bool        `json:"enabled"`
}

type wireStatus struct {
	Running    *bool       `json:"running"`
	TotalSpent json.Number `json:"total_spent"`
	DailyCap   json.Number `json:"daily_cap"`
	Remaining  json.Number `json:"remaining"`
	Rules      *wireRule   `json:"rules"`
	LogCount   int         `json:"log_count"`
}

type wireLogEntry struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

type wireLogs struct {
	Logs []wireLogEntry `json:"logs"`
}

type wireEvent struct {
	Match string `json:"match"`
	Odds  struct {
		Home json.Number `json:"home"`
		Draw json.Number `json:"draw"`
		Away json.Number `json:"away"`
	} `json:"odds"`
}

type wireHealth struct {
	Status string `json:"status"`
}

// wireMessage is the body of an ack or a rejection.
type wireMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func parseAmount(field string, n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return append([]string{}, list...)
}

func (w *wireRule) toModel() (model.Rule, error) {
	var errs []error
	minBet, err := parseAmount("min_bet", w.MinBet)
	errs = append(errs, err)
	maxBet, err := parseAmount("max_bet", w.MaxBet)
	errs = append(errs, err)
	dailyCap, err := parseAmount("daily_cap", w.DailyCap)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return model.Rule{}, err
	}
	return model.Rule{
		MinBet:    minBet,
		MaxBet:    maxBet,
		DailyCap:  dailyCap,
		Whitelist: orEmpty(w.Whitelist),
		Blacklist: orEmpty(w.Blacklist),
		Enabled:   w.Enabled,
	}, nil
}

func ruleToWire(r model.Rule) wireRule {
	return wireRule{
		MinBet:    json.Number(r.MinBet.String()),
		MaxBet:    json.Number(r.MaxBet.String()),
		DailyCap:  json.Number(r.DailyCap.String()),
		Whitelist: orEmpty(r.Whitelist),
		Blacklist: orEmpty(r.Blacklist),
		Enabled:   r.Enabled,
	}
}

func (w *wireStatus) toModel() (*model.Status, error) {
	if w.Running == nil {
		return nil, errors.New("status: missing running")
	}
	if w.Rules == nil {
		return nil, errors.New("status: missing rules")
	}
	rules, err := w.Rules.toModel()
	if err != nil {
		return nil, fmt.Errorf("status rules: %w", err)
	}
	var errs []error
	spent, err := parseAmount("total_spent", w.TotalSpent)
	errs = append(errs, err)
	dailyCap, err := parseAmount("daily_cap", w.DailyCap)
	errs = append(errs, err)
	remaining, err := parseAmount("remaining", w.Remaining)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &model.Status{
		Running:    *w.Running,
		TotalSpent: spent,
		DailyCap:   dailyCap,
		Remaining:  remaining,
		Rules:      rules,
		LogCount:   w.LogCount,
	}, nil
}

func (w *wireLogEntry) toModel() model.LogEntry {
	e := model.LogEntry{
		Kind:    model.LogKind(w.Type),
		Message: w.Message,
		Data:    normalizePayload(w.Data),
	}
	// Unparsable timestamps keep the entry with a zero time.
	if ts, err := time.Parse(time.RFC3339Nano, w.Timestamp); err == nil {
		e.Timestamp = ts
	} else if ts, err := time.Parse("2006-01-02T15:04:05.999999", w.Timestamp); err == nil {
		e.Timestamp = ts.UTC()
	}
	return e
}

// normalizePayload drops absent, null and empty-object payloads.
func normalizePayload(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil && len(obj) == 0 {
		return nil
	}
	return append(json.RawMessage{}, trimmed...)
}

func (w *wireEvent) toModel() (model.Event, error) {
	var errs []error
	home, err := parseAmount("odds.home", w.Odds.Home)
	errs = append(errs, err)
	draw, err := parseAmount("odds.draw", w.Odds.Draw)
	errs = append(errs, err)
	away, err := parseAmount("odds.away", w.Odds.Away)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return model.Event{}, fmt.Errorf("event %q: %w", w.Match, err)
	}
	return model.Event{Match: w.Match, Odds: model.Odds{Home: home, Draw: draw, Away: away}}, nil
}

// serverMessage extracts {"message": "..."} from an error body, if present.
func serverMessage(body []byte) string {
	var m wireMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	return m.Message
}
