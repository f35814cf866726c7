package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murshid-ai/murshid/internal/core"
)

// WidgetMessageRequest is one end-user chat turn from the embedded widget.
// ConversationID is empty on the visitor's first message.
type WidgetMessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// WidgetMessageHandler is the public chat endpoint. It is keyed by the
// operator's public account id, not a session token: widget conversations
// are anonymous and scoped by conversation id.
func (h *APIHandler) WidgetMessageHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	user, err := h.store.GetUserByExternalID(accountID)
	if err != nil {
		slog.Error("failed to resolve widget account", "account", accountID, "error", err)
		http.Error(w, "Failed to process request", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "Unknown account", http.StatusNotFound)
		return
	}

	var req WidgetMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.chat.SendMessage(r.Context(), core.TurnRequest{
		OwnerID:        user.ID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
