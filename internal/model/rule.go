package model

import "github.com/shopspring/decimal"

// Rule is the guardrail set the backend applies to automated betting.
// MaxBet >= MinBet is expected by the backend but not enforced here.
type Rule struct {
	MinBet    decimal.Decimal
	MaxBet    decimal.Decimal
	DailyCap  decimal.Decimal
	Whitelist []string
	Blacklist []string
	Enabled   bool
}

// DefaultRule is the draft shown before the first status fetch succeeds.
func DefaultRule() Rule {
	return Rule{
		MinBet:    decimal.NewFromInt(10),
		MaxBet:    decimal.NewFromInt(100),
		DailyCap:  decimal.NewFromInt(1000),
		Whitelist: []string{},
		Blacklist: []string{},
		Enabled:   false,
	}
}

// Clone returns a deep copy so list edits never alias another Rule.
func (r Rule) Clone() Rule {
	c := r
	c.Whitelist = append([]string{}, r.Whitelist...)
	c.Blacklist = append([]string{}, r.Blacklist...)
	return c
}

// Equal reports whether two rules carry the same values.
func (r Rule) Equal(o Rule) bool {
	return r.MinBet.Equal(o.MinBet) &&
		r.MaxBet.Equal(o.MaxBet) &&
		r.DailyCap.Equal(o.DailyCap) &&
		r.Enabled == o.Enabled &&
		sameList(r.Whitelist, o.Whitelist) &&
		sameList(r.Blacklist, o.Blacklist)
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
