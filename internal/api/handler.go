// Package api is the REST surface over the chat sync core. Screens use
// it for the request/response half of the flow (bootstrap, send, mark
// read, one-shot loads); the live snapshot streams are served by the
// websocket endpoints in internal/ws.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Nguyeniris123/jobchat/internal/auth"
	"github.com/Nguyeniris123/jobchat/internal/chat"
)

type Handler struct {
	bootstrapper *chat.Bootstrapper
	channel      *chat.Channel
	directory    *chat.Directory
	exchanger    auth.Exchanger
}

func NewHandler(b *chat.Bootstrapper, c *chat.Channel, d *chat.Directory, ex auth.Exchanger) *Handler {
	return &Handler{bootstrapper: b, channel: c, directory: d, exchanger: ex}
}

// ExchangeSession swaps a backend bearer token for a store credential.
// Mounted outside the credential middleware: the caller authenticates
// with the backend token itself.
func (h *Handler) ExchangeSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing backend token", http.StatusUnauthorized)
		return
	}
	cred, err := h.exchanger.Exchange(token)
	if err != nil {
		http.Error(w, "credential exchange rejected", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":          cred.Token,
		"participant_id": cred.Identity.ParticipantID,
		"display_name":   cred.Identity.DisplayName,
		"role":           cred.Identity.Role,
		"expires_at":     cred.ExpiresAt,
	})
}

type createRoomRequest struct {
	CounterpartID string `json:"counterpart_id"`
	ContextID     string `json:"context_id"`
}

// CreateRoom bootstraps (or re-bootstraps) the room between the caller
// and the counterpart. Idempotent: screens call it on every chat-open.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	initiatorID, counterpartID := identity.ParticipantID, req.CounterpartID
	if identity.Role == chat.RoleCounterpart {
		// The stored participant fields are role-positional; a
		// candidate opening the room still lands in the counterpart
		// slot.
		initiatorID, counterpartID = req.CounterpartID, identity.ParticipantID
	}

	roomID, err := h.bootstrapper.GetOrCreateRoom(r.Context(), initiatorID, counterpartID, req.ContextID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room_id": roomID})
}

// ListRooms serves the one-shot directory snapshot. A degraded-mode
// result is still a 200; the header flags it so clients can surface a
// non-blocking notice.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, degraded, err := h.directory.ListRooms(r.Context(), identity.ParticipantID, identity.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	if degraded {
		w.Header().Set("X-Jobchat-Degraded", "missing-index")
	}
	if summaries == nil {
		summaries = []chat.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	msgs, err := h.channel.History(r.Context(), chi.URLParam(r, "roomID"), identity.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msgID, err := h.channel.Send(r.Context(), chi.URLParam(r, "roomID"), identity.ParticipantID, req.Text, identity.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message_id": msgID})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.channel.MarkAllRead(r.Context(), chi.URLParam(r, "roomID"), identity.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return authHeader[len(prefix):]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// writeError maps the chat error taxonomy onto status codes. Anything
// unrecognized is treated as a retryable upstream failure.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	retryable := true

	var authErr *auth.AuthError
	switch {
	case errors.Is(err, chat.ErrInvalidArgument):
		status, retryable = http.StatusBadRequest, false
	case errors.Is(err, chat.ErrNotAParticipant):
		status, retryable = http.StatusForbidden, false
	case errors.Is(err, chat.ErrNotFound):
		status, retryable = http.StatusNotFound, false
	case errors.As(err, &authErr):
		status, retryable = http.StatusUnauthorized, false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: err.Error(), Retryable: retryable})
}
