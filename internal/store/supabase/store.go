// Package supabase persists conversations and messages and verifies user
// tokens against the project's auth service.
package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/backtalk/backend/internal/model/chat"
)

// Store wraps the Supabase client used for auth checks and table access.
type Store struct {
	client *supa.Client
}

// NewStore connects with the service role key so row access is not limited
// by client-side policies.
func NewStore(url, serviceKey string) (*Store, error) {
	client, err := supa.NewClient(url, serviceKey, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

// conversationRow and messageRow mirror table columns; the API layer uses
// the chat model types instead.
type conversationRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

type messageRow struct {
	ID             string `json:"id,omitempty"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// VerifyToken resolves a user JWT to its user ID.
func (s *Store) VerifyToken(_ context.Context, token string) (string, error) {
	resp, err := s.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}
	return resp.ID.String(), nil
}

// GetConversation loads one conversation by ID.
func (s *Store) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	var row conversationRow
	_, err := s.client.From("conversations").
		Select("*", "", false).
		Eq("id", id).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return conversationFromRow(row), nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Store) ListConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	var rows []conversationRow
	_, err := s.client.From("conversations").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	conversations := make([]chat.Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, conversationFromRow(row))
	}
	return conversations, nil
}

// LoadHistory returns a conversation's messages in chronological order.
func (s *Store) LoadHistory(_ context.Context, conversationID string) ([]chat.Message, error) {
	var rows []messageRow
	_, err := s.client.From("messages").
		Select("id,conversation_id,role,content,created_at", "", false).
		Eq("conversation_id", conversationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", conversationID, err)
	}

	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, chat.Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			Role:           row.Role,
			Content:        row.Content,
			CreatedAt:      parseTimestamp(row.CreatedAt),
		})
	}
	return messages, nil
}

// AppendMessage inserts one message row. Ordering relies on the table's
// created_at default.
func (s *Store) AppendMessage(_ context.Context, conversationID, role, content string) error {
	row := messageRow{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	_, _, err := s.client.From("messages").
		Insert(row, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func conversationFromRow(row conversationRow) chat.Conversation {
	return chat.Conversation{
		ID:        row.ID,
		UserID:    row.UserID,
		VideoID:   row.VideoID,
		Title:     row.Title,
		CreatedAt: parseTimestamp(row.CreatedAt),
	}
}

// parseTimestamp tolerates postgres timestamps with or without a zone.
func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
