// Package turn drives one utterance through retrieval, generation, and
// persistence. A coordinator runs turns for a single session, one at a time.
package turn

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/cloudwego/eino/schema"

	"github.com/backtalk/backend/internal/model/chat"
	"github.com/backtalk/backend/internal/service/session"
)

// Retriever fetches the passages most relevant to an utterance.
type Retriever interface {
	Retrieve(ctx context.Context, query, videoID string, k int) ([]string, error)
}

// Generator streams the model response for one turn.
type Generator interface {
	Stream(ctx context.Context, passages []string, history []chat.Message, utterance string) (*schema.StreamReader[*schema.Message], error)
}

// MessageStore persists finished turns to the conversation's message log.
type MessageStore interface {
	AppendMessage(ctx context.Context, conversationID, role, content string) error
}

// EventSink receives the turn's outbound events. SendResponse is called once
// per token with done false, then exactly once with done true.
type EventSink interface {
	SendResponse(token string, done bool)
	SendError(code, message string)
}

// Error codes carried on turn-level error events.
const (
	ErrCodeRetrieval             = "retrieval_failed"
	ErrCodeGeneration            = "generation_failed"
	ErrCodeGenerationInterrupted = "generation_interrupted"
)

// Coordinator executes turns for live sessions.
type Coordinator struct {
	retriever Retriever
	generator Generator
	store     MessageStore
}

// NewCoordinator wires the turn pipeline.
func NewCoordinator(retriever Retriever, generator Generator, store MessageStore) *Coordinator {
	return &Coordinator{
		retriever: retriever,
		generator: generator,
		store:     store,
	}
}

// Run executes one turn: retrieve context, stream the response, then record
// the user and assistant messages. The prompt history is the session history
// as it stood before this utterance.
func (c *Coordinator) Run(ctx context.Context, sess *session.Session, utterance string, sink EventSink) {
	history := sess.History()

	passages, err := c.retriever.Retrieve(ctx, utterance, sess.VideoID, 0)
	if err != nil {
		log.Printf("[turn] session %s: retrieval failed: %v", sess.ID, err)
		sink.SendError(ErrCodeRetrieval, "failed to retrieve video context")
		return
	}

	stream, err := c.generator.Stream(ctx, passages, history, utterance)
	if err != nil {
		log.Printf("[turn] session %s: generation failed to start: %v", sess.ID, err)
		sink.SendError(ErrCodeGeneration, "failed to generate response")
		return
	}
	defer stream.Close()

	var reply string
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever streamed before the failure.
			log.Printf("[turn] session %s: stream interrupted: %v", sess.ID, err)
			sink.SendError(ErrCodeGenerationInterrupted, "response stream interrupted")
			break
		}
		if msg.Content == "" {
			continue
		}
		reply += msg.Content
		sink.SendResponse(msg.Content, false)
	}
	sink.SendResponse("", true)

	c.record(ctx, sess, utterance, reply)
}

// record appends the turn to the session history and mirrors it to storage,
// user message first so stored order matches conversational order. The write
// survives connection teardown.
func (c *Coordinator) record(ctx context.Context, sess *session.Session, utterance, reply string) {
	sess.Append(chat.Message{Role: chat.RoleUser, Content: utterance})
	if reply != "" {
		sess.Append(chat.Message{Role: chat.RoleAssistant, Content: reply})
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := c.store.AppendMessage(persistCtx, sess.ConversationID, chat.RoleUser, utterance); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[turn] session %s: failed to persist user message: %v", sess.ID, err)
		}
		return
	}
	if reply == "" {
		return
	}
	if err := c.store.AppendMessage(persistCtx, sess.ConversationID, chat.RoleAssistant, reply); err != nil {
		log.Printf("[turn] session %s: failed to persist assistant message: %v", sess.ID, err)
	}
}
