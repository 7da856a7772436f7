package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"BetSentinel/internal/model"
)

// Backend is the automation backend as seen by the dashboard. Every call is a
// single round trip with no retry.
type Backend interface {
	FetchStatus(ctx context.Context) (*model.Status, error)
	FetchLogs(ctx context.Context, limit int) ([]model.LogEntry, error)
	SaveRules(ctx context.Context, rule model.Rule) error
	SetRunning(ctx context.Context, running bool) error
	FetchHealth(ctx context.Context) (string, error)
	FetchEvents(ctx context.Context) ([]model.Event, error)
}

// Client implements Backend over the backend's REST API.
type Client struct {
	BaseURL string
	Client  *http.Client
}

var _ Backend = (*Client)(nil)

// NewClient creates a backend client with optional proxy support.
func NewClient(baseURL string, timeout time.Duration, proxyURL string) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// FetchStatus returns the backend's current run status.
func (c *Client) FetchStatus(ctx context.Context) (*model.Status, error) {
	const op = "fetch status"
	body, code, err := c.do(ctx, op, http.MethodGet, "/api/automation/status", nil)
	if err != nil {
		return nil, err
	}
	if !ok(code) {
		return nil, &NetworkError{Op: op, StatusCode: code, Message: serverMessage(body)}
	}
	var ws wireStatus
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	st, err := ws.toModel()
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	return st, nil
}

// FetchLogs returns up to limit entries, oldest first. The backend answers
// newest first.
func (c *Client) FetchLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	const op = "fetch logs"
	if limit <= 0 {
		return nil, fmt.Errorf("%s: limit must be positive, got %d", op, limit)
	}
	body, code, err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/api/automation/logs?limit=%d", limit), nil)
	if err != nil {
		return nil, err
	}
	if !ok(code) {
		return nil, &NetworkError{Op: op, StatusCode: code, Message: serverMessage(body)}
	}
	var wl wireLogs
	if err := json.Unmarshal(body, &wl); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	entries := make([]model.LogEntry, len(wl.Logs))
	for i := range wl.Logs {
		entries[i] = wl.Logs[i].toModel()
	}
	slices.Reverse(entries)
	return entries, nil
}

// SaveRules submits a rule set. A rejection that carries a message is a
// *ValidationError.
func (c *Client) SaveRules(ctx context.Context, rule model.Rule) error {
	const op = "save rules"
	body, code, err := c.do(ctx, op, http.MethodPost, "/api/automation/rules", ruleToWire(rule))
	if err != nil {
		return err
	}
	if ok(code) {
		return nil
	}
	if msg := serverMessage(body); msg != "" {
		return &ValidationError{Message: msg}
	}
	return &NetworkError{Op: op, StatusCode: code}
}

// SetRunning asks the backend to start or stop automation. A rejection because
// of the current run state is a *PreconditionError.
func (c *Client) SetRunning(ctx context.Context, running bool) error {
	op, path := "stop automation", "/api/automation/stop"
	if running {
		op, path = "start automation", "/api/automation/start"
	}
	body, code, err := c.do(ctx, op, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	if ok(code) {
		return nil
	}
	msg := serverMessage(body)
	switch {
	case msg != "" && isPrecondition(code):
		return &PreconditionError{Message: msg}
	default:
		return &NetworkError{Op: op, StatusCode: code, Message: msg}
	}
}

// FetchHealth returns the backend's overall status string.
func (c *Client) FetchHealth(ctx context.Context) (string, error) {
	const op = "fetch health"
	body, code, err := c.do(ctx, op, http.MethodGet, "/api/status", nil)
	if err != nil {
		return "", err
	}
	if !ok(code) {
		return "", &NetworkError{Op: op, StatusCode: code, Message: serverMessage(body)}
	}
	var h wireHealth
	if err := json.Unmarshal(body, &h); err != nil {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return h.Status, nil
}

// FetchEvents returns the backend's current event list.
func (c *Client) FetchEvents(ctx context.Context) ([]model.Event, error) {
	const op = "fetch events"
	body, code, err := c.do(ctx, op, http.MethodGet, "/api/events", nil)
	if err != nil {
		return nil, err
	}
	if !ok(code) {
		return nil, &NetworkError{Op: op, StatusCode: code, Message: serverMessage(body)}
	}
	var we []wireEvent
	if err := json.Unmarshal(body, &we); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	events := make([]model.Event, 0, len(we))
	for i := range we {
		ev, err := we[i].toModel()
		if err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
		events = append(events, ev)
	}
	return events, nil
}

// do performs one request and returns the raw body and status code. Only
// transport failures are returned as errors.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: marshal payload: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, resp.StatusCode, nil
}

func ok(code int) bool { return code >= 200 && code < 300 }

func isPrecondition(code int) bool {
	return code == http.StatusBadRequest || code == http.StatusConflict || code == http.StatusPreconditionFailed
}
