package editor

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

var (
	ErrUnknownField = errors.New("unknown rule field")
	ErrUnknownList  = errors.New("unknown rule list")
	ErrSaveInFlight = errors.New("save already in progress")
)

// Field names an editable scalar of a Rule.
type Field string

const (
	FieldMinBet   Field = "min_bet"
	FieldMaxBet   Field = "max_bet"
	FieldDailyCap Field = "daily_cap"
	FieldEnabled  Field = "enabled"
)

// List names one of the team lists of a Rule.
type List string

const (
	ListWhitelist List = "whitelist"
	ListBlacklist List = "blacklist"
)

// ParseList validates a list name.
func ParseList(s string) (List, error) {
	switch l := List(strings.ToLower(s)); l {
	case ListWhitelist, ListBlacklist:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownList, s)
}

// Editor holds the operator's draft separately from the last rule set
// confirmed by the server.
type Editor struct {
	mu        sync.Mutex
	draft     model.Rule
	confirmed model.Rule
	loaded    bool
	saving    bool
}

// New creates an editor seeded with the default rule.
func New() *Editor {
	return &Editor{
		draft:     model.DefaultRule(),
		confirmed: model.DefaultRule(),
	}
}

// Draft returns a copy of the in-progress rule set.
func (e *Editor) Draft() model.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// Confirmed returns a copy of the last server snapshot.
func (e *Editor) Confirmed() model.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmed.Clone()
}

// Dirty reports whether the draft differs from the server snapshot.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.draft.Equal(e.confirmed)
}

// Saving reports whether a save is in flight.
func (e *Editor) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

// State returns the draft, its dirty flag and the saving flag under one lock.
func (e *Editor) State() (draft model.Rule, dirty, saving bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone(), !e.draft.Equal(e.confirmed), e.saving
}

// Loaded reports whether a server snapshot has been loaded at least once.
func (e *Editor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// SetField replaces one scalar. Input never fails to apply: unparsable
// amounts become 0 and anything but a truthy word disables the rule.
func (e *Editor) SetField(f Field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch f {
	case FieldMinBet:
		e.draft.MinBet = parseAmount(value)
	case FieldMaxBet:
		e.draft.MaxBet = parseAmount(value)
	case FieldDailyCap:
		e.draft.DailyCap = parseAmount(value)
	case FieldEnabled:
		e.draft.Enabled = parseBool(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return nil
}

// SetEnabled sets the master enable flag.
func (e *Editor) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft.Enabled = enabled
}

// Add appends the trimmed item to a list. Blank input is ignored and
// reported as false. Duplicates are kept.
func (e *Editor) Add(l List, item string) (bool, error) {
	item = strings.TrimSpace(item)

	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.list(l)
	if err != nil {
		return false, err
	}
	if item == "" {
		return false, nil
	}
	*list = append(*list, item)
	return true, nil
}

// Remove drops every entry exactly equal to item and returns how many were removed.
func (e *Editor) Remove(l List, item string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.list(l)
	if err != nil {
		return 0, err
	}
	before := len(*list)
	*list = slices.DeleteFunc(slices.Clone(*list), func(s string) bool { return s == item })
	return before - len(*list), nil
}

// LoadFromServer replaces the draft and the confirmed snapshot with rule.
// It is refused while a save is in flight.
func (e *Editor) LoadFromServer(rule model.Rule) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saving {
		return false
	}
	e.draft = rule.Clone()
	e.confirmed = rule.Clone()
	e.loaded = true
	return true
}

// BeginSave marks a save in flight and returns the draft to submit.
func (e *Editor) BeginSave() (model.Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saving {
		return model.Rule{}, ErrSaveInFlight
	}
	e.saving = true
	return e.draft.Clone(), nil
}

// EndSave clears the in-flight flag. On success the submitted rule becomes the
// confirmed snapshot; the draft itself is never touched.
func (e *Editor) EndSave(submitted model.Rule, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.saving = false
	if ok {
		e.confirmed = submitted.Clone()
	}
}

func (e *Editor) list(l List) (*[]string, error) {
	switch l {
	case ListWhitelist:
		return &e.draft.Whitelist, nil
	case ListBlacklist:
		return &e.draft.Blacklist, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownList, l)
}

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseAmount reads the longest numeric prefix of s, or 0.
func parseAmount(s string) decimal.Decimal {
	m := numericPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(m, "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}
