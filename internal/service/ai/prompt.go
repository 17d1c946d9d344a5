package ai

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/backtalk/backend/internal/model/chat"
)

// systemPrompt defines the companion's voice-first persona. Responses are
// spoken aloud, so formatted text is explicitly discouraged.
const systemPrompt = `You are Backtalk, a voice-first AI learning companion.
The user has watched a video and is talking to you about it out loud.

Your personality:
- You sound like a knowledgeable friend, not a textbook
- Keep responses concise and conversational — this will be spoken aloud
- Avoid bullet points, markdown, or formatted text since your responses
  will be heard, not read
- Ask follow-up questions to encourage deeper thinking
- Reference specific moments from the video when relevant

You will be given relevant excerpts from the video transcript as context.
Use this context to give informed answers, but don't just repeat the
transcript back — add insight, explanation, and connections.`

const passageSeparator = "\n---\n"

// buildSystemPrompt folds the retrieved passages into the system instruction.
func buildSystemPrompt(passages []string) string {
	if len(passages) == 0 {
		return systemPrompt
	}

	var builder strings.Builder
	builder.WriteString(systemPrompt)
	builder.WriteString("\n\nRelevant video context:\n")
	builder.WriteString(strings.Join(passages, passageSeparator))
	return builder.String()
}

// buildHistoryMessages converts stored turns to model messages, keeping the
// most recent limit entries in order.
func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if limit > 0 && len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
