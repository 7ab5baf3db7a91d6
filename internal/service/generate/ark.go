package generate

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/miluhq/milu/internal/config"
	"github.com/miluhq/milu/internal/model/message"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Ark generates assistant replies through an Ark chat model composed
// into an eino chain.
type Ark struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArk builds the prompt/model chain from the Ark configuration.
func NewArk(ctx context.Context, cfg config.AIConfig) (*Ark, error) {
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

	return &Ark{chain: runnable}, nil
}

// Stream runs the chain over the conversation history and yields the
// model's deltas as tokens.
func (a *Ark) Stream(ctx context.Context, history []message.Message) (TokenStream, error) {
	stream, err := a.chain.Stream(ctx, chainInput(history))
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}
	return &arkStream{inner: stream}, nil
}

type arkStream struct {
	inner *schema.StreamReader[*schema.Message]
}

func (s *arkStream) Recv() (string, error) {
	for {
		chunk, err := s.inner.Recv()
		if err != nil {
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (s *arkStream) Close() {
	s.inner.Close()
}

// chainInput maps the message chain onto the chain variables: the root
// system message becomes the system prompt, the trailing user message
// becomes the query, everything between becomes history.
func chainInput(history []message.Message) map[string]any {
	system := defaultSystemPrompt
	query := ""
	msgs := history

	if len(msgs) > 0 && msgs[0].Role == message.RoleSystem && msgs[0].Content != nil {
		system = *msgs[0].Content
		msgs = msgs[1:]
	}
	if len(msgs) > 0 && msgs[len(msgs)-1].Role == message.RoleUser && msgs[len(msgs)-1].Content != nil {
		query = *msgs[len(msgs)-1].Content
		msgs = msgs[:len(msgs)-1]
	}

	hist := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		var content string
		if m.Content != nil {
			content = *m.Content
		}
		switch m.Role {
		case message.RoleUser:
			hist = append(hist, schema.UserMessage(content))
		case message.RoleAssistant:
			hist = append(hist, schema.AssistantMessage(content, nil))
		}
	}

	return map[string]any{
		"system":  system,
		"history": hist,
		"query":   query,
	}
}
