package session

import (
	"testing"

	"github.com/backtalk/backend/internal/model/chat"
)

func TestRegistryAddGetRemove(t *testing.T) {
	reg := NewRegistry()
	s := New("user-1", "conv-1", "vid-1", nil)

	reg.Add(s)
	got, err := reg.Get(s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ConversationID != "conv-1" {
		t.Fatalf("unexpected session: %+v", got)
	}

	reg.Remove(s.ID)
	if _, err := reg.Get(s.ID); err == nil {
		t.Fatalf("expected error after remove")
	}
	if reg.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Count())
	}
}

func TestSessionHistorySnapshot(t *testing.T) {
	s := New("user-1", "conv-1", "vid-1", []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
	})

	s.Append(chat.Message{Role: chat.RoleAssistant, Content: "hi there"})

	first := s.History()
	if len(first) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(first))
	}
	if first[0].Content != "hello" || first[1].Content != "hi there" {
		t.Fatalf("history out of order: %+v", first)
	}

	first[0].Content = "mutated"
	if s.History()[0].Content != "hello" {
		t.Fatalf("snapshot should not alias internal history")
	}
}
