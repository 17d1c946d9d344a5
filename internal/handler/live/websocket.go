// Package live hosts the voice session endpoint: a duplex relay between the
// browser connection and the speech-to-text provider, with silence-based
// utterance segmentation feeding the turn pipeline.
package live

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/backtalk/backend/internal/model/chat"
	"github.com/backtalk/backend/internal/service/segment"
	"github.com/backtalk/backend/internal/service/session"
	"github.com/backtalk/backend/internal/service/stt"
	"github.com/backtalk/backend/internal/service/turn"
	"github.com/backtalk/backend/pkg/utils"
)

// Close codes sent after the upgrade when establishment checks fail.
const (
	closeCodeUnauthorized = 4401
	closeCodeForbidden    = 4403
)

// Store covers the auth and history lookups needed to open a session.
type Store interface {
	VerifyToken(ctx context.Context, token string) (string, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	LoadHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// TurnRunner executes one generation turn. Calls for one session are made
// from a single goroutine, so turns never overlap within a session.
type TurnRunner interface {
	Run(ctx context.Context, sess *session.Session, utterance string, sink turn.EventSink)
}

// Config carries the session tunables.
type Config struct {
	SilenceTimeout time.Duration
	OutboxSize     int
}

// Handler owns the live WebSocket endpoint.
type Handler struct {
	store    Store
	provider stt.Provider
	turns    TurnRunner
	registry *session.Registry
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler wires the relay's collaborators.
func NewHandler(store Store, provider stt.Provider, turns TurnRunner, registry *session.Registry, cfg Config) *Handler {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 2 * time.Second
	}
	return &Handler{
		store:    store,
		provider: provider,
		turns:    turns,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleLive runs one voice session. Parameter problems are rejected before
// the upgrade; auth problems close the socket with a distinct code before
// any provider connection is opened.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	conversationID := r.URL.Query().Get("conversation_id")
	if token == "" || conversationID == "" {
		utils.RespondError(w, http.StatusBadRequest, "token and conversation_id are required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	userID, err := h.store.VerifyToken(ctx, token)
	if err != nil {
		log.Printf("[live] token rejected: %v", err)
		closeWithCode(conn, closeCodeUnauthorized, "invalid token")
		return
	}

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil || conv.UserID != userID {
		if err != nil {
			log.Printf("[live] conversation lookup failed: %v", err)
		}
		closeWithCode(conn, closeCodeForbidden, "conversation access denied")
		return
	}

	history, err := h.store.LoadHistory(ctx, conversationID)
	if err != nil {
		log.Printf("[live] history load failed: %v", err)
		closeWithCode(conn, websocket.CloseInternalServerErr, "failed to load conversation history")
		return
	}

	sess := session.New(userID, conversationID, conv.VideoID, history)
	h.registry.Add(sess)
	defer h.registry.Remove(sess.ID)

	outbox := newOutbox(conn, h.cfg.OutboxSize, sess.ID)
	defer outbox.close()

	// Cancellation from any loop closes the outbox; its write loop drains
	// pending events and closes conn, which unblocks the audio read loop.
	// A provider failure therefore tears the session down even when the
	// client never sends another frame.
	stopOnCancel := context.AfterFunc(ctx, outbox.close)
	defer stopOnCancel()

	sttStream, err := h.provider.Connect(ctx, sess.ID)
	if err != nil {
		log.Printf("[live] session %s: stt connect failed: %v", sess.ID, err)
		outbox.SendError("stt_unavailable", "speech recognition unavailable")
		closeWithCode(conn, websocket.CloseInternalServerErr, "speech recognition unavailable")
		return
	}
	defer sttStream.Close()

	segmenter := segment.New(h.cfg.SilenceTimeout)
	defer segmenter.Close()

	log.Printf("[live] session %s opened for conversation %s", sess.ID, conversationID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.runTurns(ctx, sess, segmenter, outbox)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		h.pumpTranscripts(sttStream, segmenter, outbox)
	}()

	h.pumpAudio(ctx, conn, sttStream)

	cancel()
	sttStream.Close()
	wg.Wait()
	log.Printf("[live] session %s closed", sess.ID)
}

// pumpAudio forwards client binary frames to the provider unmodified and in
// order. Returns when the client disconnects or the session is cancelled.
func (h *Handler) pumpAudio(ctx context.Context, conn *websocket.Conn, stream stt.Stream) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[live] client read failed: %v", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := stream.SendAudio(data); err != nil {
			if err != stt.ErrStreamClosed {
				log.Printf("[live] audio forward failed: %v", err)
			}
			return
		}
	}
}

// pumpTranscripts forwards every provider fragment to the client in order
// and feeds finals to the segmenter. Runs until the provider stream ends.
func (h *Handler) pumpTranscripts(stream stt.Stream, segmenter *segment.Segmenter, outbox *outbox) {
	for ev := range stream.Events() {
		outbox.SendTranscript(ev.Text, ev.IsFinal)
		segmenter.Push(ev.Text, ev.IsFinal)
	}
	if err := stream.Err(); err != nil {
		log.Printf("[live] stt stream failed: %v", err)
		outbox.SendError("stt_disconnected", "speech provider connection lost")
	}
}

// runTurns consumes completed utterances one at a time, so a session's turns
// serialize and history writes never interleave.
func (h *Handler) runTurns(ctx context.Context, sess *session.Session, segmenter *segment.Segmenter, outbox *outbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case utterance := <-segmenter.Utterances():
			h.turns.Run(ctx, sess, utterance, outbox)
		}
	}
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Printf("[live] close handshake failed: %v", err)
	}
}
