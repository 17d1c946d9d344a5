package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/backtalk/backend/internal/model/chat"
	"github.com/backtalk/backend/internal/service/session"
	"github.com/backtalk/backend/internal/service/stt"
	"github.com/backtalk/backend/internal/service/turn"
)

type fakeStore struct {
	userID       string
	verifyErr    error
	conversation chat.Conversation
	convErr      error
	history      []chat.Message
}

func (f *fakeStore) VerifyToken(_ context.Context, _ string) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.userID, nil
}

func (f *fakeStore) GetConversation(_ context.Context, _ string) (chat.Conversation, error) {
	return f.conversation, f.convErr
}

func (f *fakeStore) LoadHistory(_ context.Context, _ string) ([]chat.Message, error) {
	return f.history, nil
}

type fakeSTTStream struct {
	events    chan stt.TranscriptEvent
	closeOnce sync.Once
	err       error
}

func (f *fakeSTTStream) SendAudio(_ []byte) error           { return nil }
func (f *fakeSTTStream) Events() <-chan stt.TranscriptEvent { return f.events }
func (f *fakeSTTStream) Err() error                         { return f.err }
func (f *fakeSTTStream) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

// failWith ends the stream the way an abnormal provider disconnect does.
func (f *fakeSTTStream) failWith(err error) {
	f.err = err
	f.closeOnce.Do(func() { close(f.events) })
}

type fakeProvider struct {
	connects atomic.Int32
	stream   *fakeSTTStream
}

func (f *fakeProvider) Connect(_ context.Context, _ string) (stt.Stream, error) {
	f.connects.Add(1)
	return f.stream, nil
}

type fakeTurns struct {
	mu         sync.Mutex
	utterances []string
}

func (f *fakeTurns) Run(_ context.Context, _ *session.Session, utterance string, sink turn.EventSink) {
	f.mu.Lock()
	f.utterances = append(f.utterances, utterance)
	f.mu.Unlock()

	sink.SendResponse("answer", false)
	sink.SendResponse("", true)
}

func newTestHandler(store Store, provider stt.Provider, turns TurnRunner) *Handler {
	return NewHandler(store, provider, turns, session.NewRegistry(), Config{
		SilenceTimeout: 50 * time.Millisecond,
		OutboxSize:     16,
	})
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
}

func TestMissingParamsRejectedBeforeUpgrade(t *testing.T) {
	provider := &fakeProvider{stream: &fakeSTTStream{events: make(chan stt.TranscriptEvent)}}
	h := newTestHandler(&fakeStore{userID: "u1"}, provider, &fakeTurns{})
	server := httptest.NewServer(http.HandlerFunc(h.HandleLive))
	defer server.Close()

	resp, err := http.Get(server.URL + "/?token=abc")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if provider.connects.Load() != 0 {
		t.Fatalf("provider must not be contacted on bad params")
	}
}

func TestInvalidTokenClosesWithoutProviderConnect(t *testing.T) {
	provider := &fakeProvider{stream: &fakeSTTStream{events: make(chan stt.TranscriptEvent)}}
	h := newTestHandler(&fakeStore{verifyErr: errors.New("bad token")}, provider, &fakeTurns{})
	server := httptest.NewServer(http.HandlerFunc(h.HandleLive))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token=bad&conversation_id=c1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, closeCodeUnauthorized) {
		t.Fatalf("expected close code %d, got %v", closeCodeUnauthorized, err)
	}
	if provider.connects.Load() != 0 {
		t.Fatalf("invalid token must never open a provider connection, got %d", provider.connects.Load())
	}
}

func TestForeignConversationRejected(t *testing.T) {
	provider := &fakeProvider{stream: &fakeSTTStream{events: make(chan stt.TranscriptEvent)}}
	store := &fakeStore{
		userID:       "u1",
		conversation: chat.Conversation{ID: "c1", UserID: "someone-else", VideoID: "v1"},
	}
	h := newTestHandler(store, provider, &fakeTurns{})
	server := httptest.NewServer(http.HandlerFunc(h.HandleLive))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token=ok&conversation_id=c1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, closeCodeForbidden) {
		t.Fatalf("expected close code %d, got %v", closeCodeForbidden, err)
	}
	if provider.connects.Load() != 0 {
		t.Fatalf("foreign conversation must never open a provider connection")
	}
}

func TestTranscriptRelayAndTurn(t *testing.T) {
	stream := &fakeSTTStream{events: make(chan stt.TranscriptEvent, 4)}
	provider := &fakeProvider{stream: stream}
	store := &fakeStore{
		userID:       "u1",
		conversation: chat.Conversation{ID: "c1", UserID: "u1", VideoID: "v1"},
	}
	turns := &fakeTurns{}
	h := newTestHandler(store, provider, turns)
	server := httptest.NewServer(http.HandlerFunc(h.HandleLive))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token=ok&conversation_id=c1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	stream.events <- stt.TranscriptEvent{Text: "hello", IsFinal: false}
	stream.events <- stt.TranscriptEvent{Text: "hello there", IsFinal: true}

	var got []map[string]any
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read failed before terminal event: %v (got %v)", err, got)
		}
		got = append(got, ev)
		if ev["type"] == eventTypeResponse && ev["done"] == true {
			break
		}
	}

	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d: %v", len(got), got)
	}
	if got[0]["type"] != eventTypeTranscript || got[0]["text"] != "hello" || got[0]["is_final"] != false {
		t.Fatalf("unexpected first event: %v", got[0])
	}
	if got[1]["type"] != eventTypeTranscript || got[1]["text"] != "hello there" || got[1]["is_final"] != true {
		t.Fatalf("unexpected second event: %v", got[1])
	}
	if got[2]["type"] != eventTypeResponse || got[2]["text"] != "answer" || got[2]["done"] != false {
		t.Fatalf("unexpected token event: %v", got[2])
	}

	turns.mu.Lock()
	defer turns.mu.Unlock()
	if len(turns.utterances) != 1 || turns.utterances[0] != "hello there" {
		t.Fatalf("unexpected utterances: %v", turns.utterances)
	}
}

func TestProviderFailureTearsDownSilentSession(t *testing.T) {
	stream := &fakeSTTStream{events: make(chan stt.TranscriptEvent)}
	provider := &fakeProvider{stream: stream}
	store := &fakeStore{
		userID:       "u1",
		conversation: chat.Conversation{ID: "c1", UserID: "u1", VideoID: "v1"},
	}
	registry := session.NewRegistry()
	h := NewHandler(store, provider, &fakeTurns{}, registry, Config{
		SilenceTimeout: 50 * time.Millisecond,
		OutboxSize:     16,
	})
	server := httptest.NewServer(http.HandlerFunc(h.HandleLive))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token=ok&conversation_id=c1"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// The client sends nothing; only the provider drops.
	stream.failWith(errors.New("provider dropped"))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("expected error event before closure, got %v", err)
	}
	if ev["type"] != eventTypeError || ev["code"] != "stt_disconnected" {
		t.Fatalf("unexpected event: %v", ev)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection closed after provider failure")
	}

	deadline := time.Now().Add(3 * time.Second)
	for registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session never left the registry after provider failure")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
