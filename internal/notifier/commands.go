package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"BetSentinel/internal/editor"
	"BetSentinel/internal/session"
	"BetSentinel/internal/view"
)

const defaultLogLines = 10

const helpText = `Available commands:
/status - run state and budget
/logs [n] - newest activity
/rules - current rule draft
/start, /stop - control automation
/save - submit the rule draft
/set &lt;field&gt; &lt;value&gt; - min_bet, max_bet, daily_cap, enabled
/enable, /disable - toggle the rule set
/whitelist add|rm &lt;team&gt;
/blacklist add|rm &lt;team&gt;`

// Controller is the dashboard session as driven from chat.
type Controller interface {
	Snapshot() view.Snapshot
	SetField(f editor.Field, value string) error
	SetEnabled(enabled bool)
	AddToList(l editor.List, item string) (bool, error)
	RemoveFromList(l editor.List, item string) (int, error)
	Save(ctx context.Context) error
	Start(ctx context.Context) error
	StopAutomation(ctx context.Context) error
}

var _ Controller = (*session.Session)(nil)

// Commands maps chat commands onto the session.
type Commands struct {
	ctl Controller
}

func NewCommands(ctl Controller) *Commands {
	return &Commands{ctl: ctl}
}

// Handle processes one command and returns the reply. Backend outcomes of
// /save, /start and /stop are reported by the toast relay, so those return ""
// unless the action was refused locally.
func (c *Commands) Handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	cmd := strings.ToLower(fields[0])
	// "/status@SentinelBot" in group chats.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	switch cmd {
	case "/status":
		return view.FormatText(c.ctl.Snapshot())
	case "/logs":
		n := defaultLogLines
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		return view.FormatLogs(c.ctl.Snapshot().Logs, n)
	case "/rules":
		snap := c.ctl.Snapshot()
		return view.FormatRules(snap.Draft, snap.Dirty)
	case "/save":
		return refusal(c.ctl.Save(ctx))
	case "/start":
		return refusal(c.ctl.Start(ctx))
	case "/stop":
		return refusal(c.ctl.StopAutomation(ctx))
	case "/set":
		if len(args) < 2 {
			return "Usage: /set &lt;field&gt; &lt;value&gt;"
		}
		if err := c.ctl.SetField(editor.Field(strings.ToLower(args[0])), args[1]); err != nil {
			return failure(err)
		}
		return c.rules()
	case "/enable", "/disable":
		c.ctl.SetEnabled(cmd == "/enable")
		return c.rules()
	case "/whitelist", "/blacklist":
		return c.editList(editor.List(strings.TrimPrefix(cmd, "/")), args)
	default:
		return helpText
	}
}

func (c *Commands) editList(l editor.List, args []string) string {
	if len(args) < 2 {
		return fmt.Sprintf("Usage: /%s add|rm &lt;team&gt;", l)
	}
	team := strings.Join(args[1:], " ")
	switch strings.ToLower(args[0]) {
	case "add":
		if _, err := c.ctl.AddToList(l, team); err != nil {
			return failure(err)
		}
	case "rm", "remove":
		n, err := c.ctl.RemoveFromList(l, team)
		if err != nil {
			return failure(err)
		}
		if n == 0 {
			return fmt.Sprintf("%s is not on the %s", html.EscapeString(team), l)
		}
	default:
		return fmt.Sprintf("Usage: /%s add|rm &lt;team&gt;", l)
	}
	return c.rules()
}

func (c *Commands) rules() string {
	snap := c.ctl.Snapshot()
	return view.FormatRules(snap.Draft, snap.Dirty)
}

// failure renders an edit error. Errors can quote operator input.
func failure(err error) string {
	return "❌ " + html.EscapeString(err.Error())
}

// refusal describes errors that never reached the backend.
func refusal(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrActionDisabled):
		return "⚠️ Not allowed: " + html.EscapeString(err.Error())
	case errors.Is(err, editor.ErrSaveInFlight):
		return "⏳ A save is already in progress"
	case errors.Is(err, session.ErrNotMounted):
		return "Dashboard is not running"
	default:
		return ""
	}
}
