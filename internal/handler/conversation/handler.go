// Package conversation serves read access to a user's conversations and
// their message logs.
package conversation

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/backtalk/backend/internal/model/chat"
	"github.com/backtalk/backend/pkg/utils"
)

// Store covers the lookups the conversation endpoints need.
type Store interface {
	VerifyToken(ctx context.Context, token string) (string, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	LoadHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// Handler owns the conversation read endpoints.
type Handler struct {
	store Store
}

// NewHandler creates the handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// HandleList returns the caller's conversations, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conversations, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		log.Printf("[conversation] list failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// HandleMessages returns one conversation's messages in chronological order.
// The conversation must belong to the caller.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.UserID != userID {
		utils.RespondError(w, http.StatusForbidden, "conversation access denied")
		return
	}

	messages, err := h.store.LoadHistory(r.Context(), conversationID)
	if err != nil {
		log.Printf("[conversation] history load failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// authenticate resolves the bearer token to a user ID, writing the error
// response itself on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}

	userID, err := h.store.VerifyToken(r.Context(), token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid token")
		return "", false
	}
	return userID, true
}
