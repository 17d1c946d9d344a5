// Package ai runs the generation model behind one retrieval-augmented chain:
// system instruction with video context, prior history, then the utterance.
package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/backtalk/backend/internal/config"
	"github.com/backtalk/backend/internal/model/chat"
)

// Service encapsulates the streaming generation chain.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

// NewService compiles the chat chain from configuration.
func NewService(ctx context.Context, cfg config.AIConfig, historyLimit int) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable, historyLimit: historyLimit}, nil
}

// Stream produces the model's token stream for one turn. Tokens arrive in
// provider order; the caller owns closing the reader.
func (s *Service) Stream(ctx context.Context, passages []string, history []chat.Message, utterance string) (*schema.StreamReader[*schema.Message], error) {
	input := map[string]any{
		"system":  buildSystemPrompt(passages),
		"history": buildHistoryMessages(history, s.historyLimit),
		"query":   utterance,
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chain output: %w", err)
	}

	return stream, nil
}
