package view

import (
	"fmt"
	"html"
	"strings"
)

var stateIcon = map[string]string{
	"RUNNING": "🟢",
	"STOPPED": "🔴",
	"PENDING": "🟠",
}

// FormatText formats the run status for a chat message.
func FormatText(s Snapshot) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s <b>Automation %s</b>\n\n", stateIcon[string(s.State)], s.State))
	b.WriteString(fmt.Sprintf("Spent: $%s / $%s\n", s.Spent, s.DailyCap))
	b.WriteString(fmt.Sprintf("Remaining: $%s\n", s.Remaining))
	b.WriteString(fmt.Sprintf("Log entries: %d\n", s.LogCount))
	if s.StatusUpdatedAt != nil {
		b.WriteString(fmt.Sprintf("Updated: %s\n", s.StatusUpdatedAt.Format("2006-01-02 15:04:05")))
	}
	if s.StatusStale {
		b.WriteString("\n⚠️ Backend unreachable, showing last known status\n")
	}
	b.WriteString(fmt.Sprintf("\nBackend: %s", html.EscapeString(s.Overview.Health)))
	return b.String()
}

// FormatRules formats a rule draft for a chat message.
func FormatRules(r RuleView, dirty bool) string {
	var b strings.Builder
	b.WriteString("📋 <b>Rule draft</b>")
	if dirty {
		b.WriteString(" (unsaved)")
	}
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Min bet: $%s\n", r.MinBet))
	b.WriteString(fmt.Sprintf("Max bet: $%s\n", r.MaxBet))
	b.WriteString(fmt.Sprintf("Daily cap: $%s\n", r.DailyCap))
	b.WriteString(fmt.Sprintf("Enabled: %v\n", r.Enabled))
	b.WriteString(fmt.Sprintf("Whitelist: %s\n", joinTeams(r.Whitelist)))
	b.WriteString(fmt.Sprintf("Blacklist: %s\n", joinTeams(r.Blacklist)))
	return b.String()
}

// FormatLogs formats the newest n log lines, oldest first.
func FormatLogs(lines []LogLine, n int) string {
	if len(lines) == 0 {
		return "No logs yet"
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	var b strings.Builder
	b.WriteString("📜 <b>Activity log</b>\n\n")
	for _, l := range lines {
		ts := "--:--:--"
		if !l.Time.IsZero() {
			ts = l.Time.Local().Format("15:04:05")
		}
		b.WriteString(fmt.Sprintf("<code>%s</code> [%s] %s\n", ts, html.EscapeString(l.Kind), html.EscapeString(l.Message)))
	}
	return b.String()
}

func joinTeams(teams []string) string {
	if len(teams) == 0 {
		return "none"
	}
	escaped := make([]string, len(teams))
	for i, t := range teams {
		escaped[i] = html.EscapeString(t)
	}
	return strings.Join(escaped, ", ")
}
