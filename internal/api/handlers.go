package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/murshid-ai/murshid/internal/auth"
	"github.com/murshid-ai/murshid/internal/core"
	"github.com/murshid-ai/murshid/internal/store"
)

type ctxKey string

const (
	ctxUserID         ctxKey = "userID"
	ctxExternalUserID ctxKey = "externalUserID"
)

type APIHandler struct {
	store    *store.SQLiteStore
	chat     *core.ChatService
	indexer  *core.Indexer
	enforcer *core.UsageEnforcer
}

func NewAPIHandler(st *store.SQLiteStore, chat *core.ChatService, indexer *core.Indexer, enforcer *core.UsageEnforcer) *APIHandler {
	return &APIHandler{store: st, chat: chat, indexer: indexer, enforcer: enforcer}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.store.GetUserByExternalID(externalUserID)
		if err != nil {
			slog.Error("failed to resolve authenticated user", "user", externalUserID, "error", err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, user.ID)
		ctx = context.WithValue(ctx, ctxExternalUserID, user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxUserID).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeTurnError maps the core error taxonomy to HTTP statuses with short,
// non-technical messages. Provider detail goes to the log, not the client.
func writeTurnError(w http.ResponseWriter, err error) {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Msg})
		return
	}
	var qErr *core.QuotaError
	if errors.As(err, &qErr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":  "Monthly usage limit reached. Please try again next month or upgrade your plan.",
			"reason": qErr.Reason,
			"used":   qErr.Used,
			"limit":  qErr.Limit,
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	var cErr *core.CompletionError
	if errors.As(err, &cErr) {
		slog.Error("completion failed", "kind", cErr.Kind, "error", cErr.Err)
		switch cErr.Kind {
		case core.CompletionAuth:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "The assistant is misconfigured. Please contact the site owner."})
		case core.CompletionRateLimited:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "The assistant is busy right now. Please try again in a moment."})
		case core.CompletionTimeout:
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "The assistant took too long to answer. Please try again."})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "The assistant could not answer right now. Please try again."})
		}
		return
	}
	slog.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Something went wrong"})
}

// Account handlers

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "user", req.UserID, "error", err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.store.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		slog.Error("failed to create user", "user", req.UserID, "error", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByExternalID(req.UserID)
	if err != nil {
		slog.Error("failed to look up user", "user", req.UserID, "error", err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		slog.Error("failed to generate token", "user", req.UserID, "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Material handlers

type CreateMaterialRequest struct {
	Kind      string `json:"kind"` // "file", "link" or "text"
	Title     string `json:"title"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
}

func (h *APIHandler) CreateMaterialHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Kind != "file" && req.Kind != "link" && req.Kind != "text" {
		http.Error(w, "Kind must be one of: file, link, text", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Title and content are required", http.StatusBadRequest)
		return
	}

	item := &store.KnowledgeItem{
		ID:        uuid.NewString(),
		OwnerID:   ownerID(r),
		Kind:      req.Kind,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		SourceURL: req.SourceURL,
	}
	if err := h.store.CreateKnowledgeItem(item); err != nil {
		slog.Error("failed to create material", "owner_id", item.OwnerID, "error", err)
		http.Error(w, "Failed to create material", http.StatusInternalServerError)
		return
	}

	// Indexing is background work; the material is visible immediately
	// with status "untrained" until the run finishes.
	if err := h.indexer.Start(context.Background(), item.ID); err != nil {
		slog.Warn("could not start indexing for new material", "item_id", item.ID, "error", err)
	}

	item.Content = "" // keep the response light
	writeJSON(w, http.StatusCreated, item)
}

func (h *APIHandler) ListMaterialsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.KnowledgeItemsByOwner(ownerID(r))
	if err != nil {
		slog.Error("failed to list materials", "error", err)
		http.Error(w, "Failed to list materials", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.KnowledgeItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *APIHandler) GetMaterialHandler(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.KnowledgeItemForOwner(chi.URLParam(r, "materialID"), ownerID(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Material not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get material", "error", err)
		http.Error(w, "Failed to get material", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *APIHandler) DeleteMaterialHandler(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteKnowledgeItem(chi.URLParam(r, "materialID"), ownerID(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Material not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to delete material", "error", err)
		http.Error(w, "Failed to delete material", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrainMaterialHandler triggers a background reindex. The caller observes
// progress through the material's status field.
func (h *APIHandler) TrainMaterialHandler(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "materialID")
	if _, err := h.store.KnowledgeItemForOwner(materialID, ownerID(r)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Material not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to load material for training", "error", err)
		http.Error(w, "Failed to start training", http.StatusInternalServerError)
		return
	}

	if err := h.indexer.Start(context.Background(), materialID); err != nil {
		if errors.Is(err, core.ErrIndexingInProgress) {
			http.Error(w, "Training is already in progress for this material", http.StatusConflict)
			return
		}
		slog.Error("failed to start indexing", "item_id", materialID, "error", err)
		http.Error(w, "Failed to start training", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Personality handlers

func (h *APIHandler) GetPersonalityHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Personality(ownerID(r))
	if err != nil {
		slog.Error("failed to get personality", "error", err)
		http.Error(w, "Failed to get personality", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *APIHandler) UpdatePersonalityHandler(w http.ResponseWriter, r *http.Request) {
	var p store.Personality
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if p.Tone != "" && p.Tone != "formal" && p.Tone != "friendly" && p.Tone != "professional" {
		http.Error(w, "Tone must be one of: formal, friendly, professional", http.StatusBadRequest)
		return
	}
	if p.Language != "" && p.Language != "arabic" && p.Language != "english" && p.Language != "mirror" {
		http.Error(w, "Language must be one of: arabic, english, mirror", http.StatusBadRequest)
		return
	}
	if p.Tone == "" {
		p.Tone = "professional"
	}
	if p.Language == "" {
		p.Language = "mirror"
	}
	p.OwnerID = ownerID(r)

	if err := h.store.SavePersonality(&p); err != nil {
		slog.Error("failed to save personality", "error", err)
		http.Error(w, "Failed to save personality", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Conversation handlers

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ConversationsByOwner(ownerID(r))
	if err != nil {
		slog.Error("failed to list conversations", "error", err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type ConversationDetailsResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.store.ConversationByID(conversationID)
	if err != nil || conv.OwnerID != ownerID(r) {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to get conversation", "error", err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}

	messages, err := h.store.MessagesByConversation(conversationID, 200, 0)
	if err != nil {
		slog.Error("failed to get messages", "error", err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, ConversationDetailsResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) MarkConversationReadHandler(w http.ResponseWriter, r *http.Request) {
	err := h.store.MarkConversationRead(chi.URLParam(r, "conversationID"), ownerID(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to mark conversation read", "error", err)
		http.Error(w, "Failed to update conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteConversation(chi.URLParam(r, "conversationID"), ownerID(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to delete conversation", "error", err)
		http.Error(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

// MessageFeedbackHandler lets the operator flag an unhelpful assistant reply,
// or clear the flag.
func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.store.SetMessageFeedback(chi.URLParam(r, "messageID"), ownerID(r), req.Negative)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to set message feedback", "error", err)
		http.Error(w, "Failed to set feedback", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage handler

func (h *APIHandler) GetUsageHandler(w http.ResponseWriter, r *http.Request) {
	counter, limits, err := h.enforcer.Current(ownerID(r))
	if err != nil {
		slog.Error("failed to get usage", "error", err)
		http.Error(w, "Failed to get usage", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages_used":  counter.MessagesUsed,
		"messages_limit": limits.Messages,
		"tokens_used":    counter.TokensUsed,
		"tokens_limit":   limits.Tokens,
		"last_reset":     counter.LastReset,
	})
}
