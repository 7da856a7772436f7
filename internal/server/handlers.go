package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"BetSentinel/internal/editor"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/session"
	"BetSentinel/internal/view"
)

// Controller is the dashboard session as driven over HTTP.
type Controller interface {
	Snapshot() view.Snapshot
	SetField(f editor.Field, value string) error
	AddToList(l editor.List, item string) (bool, error)
	RemoveFromList(l editor.List, item string) (int, error)
	Save(ctx context.Context) error
	Start(ctx context.Context) error
	StopAutomation(ctx context.Context) error
}

var _ Controller = (*session.Session)(nil)

// Handler serves the dashboard API and WebSocket feed.
type Handler struct {
	ctl      Controller
	hub      *Hub
	ctx      context.Context
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a handler. ctx bounds the lifetime of WebSocket pumps.
func NewHandler(ctx context.Context, ctl Controller, hub *Hub, origins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ctl: ctl,
		hub: hub,
		ctx: ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		logger: logger.Named("http"),
	}
}

// HealthCheck returns service health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}

// GetView returns the current dashboard snapshot.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// SetField edits one scalar of the rule draft.
func (h *Handler) SetField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	field := editor.Field(chi.URLParam(r, "field"))
	if err := h.ctl.SetField(field, rawValue(req.Value)); err != nil {
		h.fail(w, err, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// AddToList appends a team to the whitelist or blacklist draft.
func (h *Handler) AddToList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item string `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	list, err := editor.ParseList(chi.URLParam(r, "list"))
	if err != nil {
		h.fail(w, err, err.Error())
		return
	}
	if _, err := h.ctl.AddToList(list, req.Item); err != nil {
		h.fail(w, err, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// RemoveFromList drops every exact match of the team from a draft list.
func (h *Handler) RemoveFromList(w http.ResponseWriter, r *http.Request) {
	list, err := editor.ParseList(chi.URLParam(r, "list"))
	if err != nil {
		h.fail(w, err, err.Error())
		return
	}
	item, err := url.PathUnescape(chi.URLParam(r, "item"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item")
		return
	}
	if _, err := h.ctl.RemoveFromList(list, item); err != nil {
		h.fail(w, err, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// Save submits the rule draft.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, recorder.ActionSave, h.ctl.Save)
}

// Start starts automation.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, recorder.ActionStart, h.ctl.Start)
}

// Stop stops automation.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, recorder.ActionStop, h.ctl.StopAutomation)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, name string, action func(context.Context) error) {
	if err := action(r.Context()); err != nil {
		h.fail(w, err, session.FailureText(name, err))
		return
	}
	respondJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// HandleWebSocket upgrades the connection and streams snapshots to it.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := NewClient(uuid.New().String(), conn, h.hub)
	if !h.attach(c) {
		conn.Close()
		return
	}

	// Pumps outlive the request.
	go c.WritePump(h.ctx)
	go c.ReadPump()
}

// attach queues the current snapshot for c, then registers it. Once
// registered, only the hub may close c.Send.
func (h *Handler) attach(c *Client) bool {
	c.TrySend(ServerMessage{Type: MessageTypeSnapshot, Payload: h.ctl.Snapshot(), Timestamp: time.Now()})
	return h.hub.Register(c)
}

// fail maps an error to a status code. Backend failures answer 502 with
// backendMsg.
func (h *Handler) fail(w http.ResponseWriter, err error, backendMsg string) {
	switch {
	case errors.Is(err, editor.ErrUnknownField), errors.Is(err, editor.ErrUnknownList):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrActionDisabled), errors.Is(err, editor.ErrSaveInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNotMounted):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Warn("backend action failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, backendMsg)
	}
}

// rawValue unquotes JSON strings and passes numbers and booleans through as text.
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || allowed[origin]
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
