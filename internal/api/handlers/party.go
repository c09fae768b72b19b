package handlers

import (
	"net/http"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
	"github.com/google/uuid"
)

type PartyHandler struct {
	partyService *service.PartyService
}

func NewPartyHandler(partyService *service.PartyService) *PartyHandler {
	return &PartyHandler{partyService: partyService}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (h *PartyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	parties, err := h.partyService.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, "party.List", err)
		return
	}

	writeJSON(w, http.StatusOK, parties)
}

func (h *PartyHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	partyID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	roster, err := h.partyService.GetMembers(r.Context(), partyID, userID)
	if err != nil {
		writeError(w, r, "party.Members", err)
		return
	}

	writeJSON(w, http.StatusOK, roster)
}

func (h *PartyHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	partyID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.partyService.Leave(r.Context(), partyID, userID); err != nil {
		writeError(w, r, "party.Leave", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PartyHandler) Disband(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	partyID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.partyService.Disband(r.Context(), partyID, userID); err != nil {
		writeError(w, r, "party.Disband", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMessages returns chat history. Polling clients pass ?after=<id> of
// the last message they hold; ?since=<RFC3339> is also accepted.
func (h *PartyHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	partyID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var cursor domain.ChatCursor
	query := r.URL.Query()
	if raw := query.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		cursor.Since = &t
	}
	if raw := query.Get("after"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "after must be a message id", http.StatusBadRequest)
			return
		}
		cursor.After = &id
	}

	msgs, err := h.partyService.ListMessages(r.Context(), partyID, userID, cursor)
	if err != nil {
		writeError(w, r, "party.ListMessages", err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *PartyHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	partyID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.partyService.SendMessage(r.Context(), partyID, userID, req.Content)
	if err != nil {
		writeError(w, r, "party.SendMessage", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
