// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/ws"
	"github.com/gorilla/websocket"
)

// maxTTL caps the lifetime a creator may request
const maxTTL = 7 * 24 * time.Hour

type PollHandler struct {
	engine   *engine.Engine
	cfg      cliparse.Config
	upgrader *websocket.Upgrader
}

func NewPollHandler(e *engine.Engine, cfg cliparse.Config) *PollHandler {
	return &PollHandler{
		engine:   e,
		cfg:      cfg,
		upgrader: ws.NewUpgrader(cfg.AllowedOrigins),
	}
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.TTLSeconds < 0 || req.TTLSeconds > int(maxTTL/time.Second) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "ttl_seconds out of range")
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second

	p, hostKey, err := h.engine.CreatePoll(r.Context(), req.Question, req.Options, ttl)
	if err != nil {
		middleware.StoreError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.CreatePollResponse{
		RoomCode: p.RoomCode,
		HostKey:  hostKey,
		Poll:     p,
	})
}

// GetPoll handles GET /polls/{code}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), r.PathValue("code"))
	if err != nil {
		middleware.StoreError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, snap)
}

// ChangeState handles POST /polls/{code}/state. The host key travels in the
// X-Host-Key header.
func (h *PollHandler) ChangeState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	hostKey := r.Header.Get("X-Host-Key")
	if hostKey == "" {
		h.engine.DenyStateChange(r.Context(), code, "")
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Host-Key header is required")
		return
	}

	var req models.ChangeStateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	change, err := h.engine.ChangeState(r.Context(), code, req.State, hostKey)
	if err != nil {
		middleware.StoreError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChangeStateResponse{
		PreviousState: change.Previous,
		NewState:      change.Current,
	})
}

// Connect handles GET /polls/{code}/ws. Unknown rooms are rejected before
// the upgrade so the client gets a plain 404.
func (h *PollHandler) Connect(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), r.PathValue("code"))
	if err != nil {
		middleware.StoreError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		slog.Warn("websocket upgrade failed", "room", snap.Poll.RoomCode, "error", err)
		return
	}
	ws.Serve(h.engine, conn, snap.Poll.RoomCode)
}
