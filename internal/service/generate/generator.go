// Package generate produces assistant message content token by token.
package generate

import (
	"context"

	"github.com/miluhq/milu/internal/model/message"
)

// TokenStream yields generated tokens one at a time. Recv returns io.EOF
// once the stream is exhausted.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// Generator starts a token stream for an assistant reply, given the
// conversation history ending in the user message being answered.
type Generator interface {
	Stream(ctx context.Context, history []message.Message) (TokenStream, error)
}
