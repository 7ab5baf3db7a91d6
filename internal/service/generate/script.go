package generate

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/miluhq/milu/internal/model/message"
)

// Script replays a fixed token sequence with a fixed delay between
// tokens. It stands in for a real model when no Ark credentials are
// configured, and lets tests drive generation deterministically.
type Script struct {
	tokens   []string
	interval time.Duration
}

// NewScript returns a generator replaying tokens every interval. A nil
// token slice falls back to counting "0" through "9".
func NewScript(tokens []string, interval time.Duration) *Script {
	if tokens == nil {
		tokens = make([]string, 0, 10)
		for i := 0; i < 10; i++ {
			tokens = append(tokens, strconv.Itoa(i))
		}
	}
	return &Script{tokens: tokens, interval: interval}
}

// Stream ignores the history and replays the scripted tokens.
func (s *Script) Stream(ctx context.Context, _ []message.Message) (TokenStream, error) {
	return &scriptStream{ctx: ctx, tokens: s.tokens, interval: s.interval}, nil
}

type scriptStream struct {
	ctx      context.Context
	tokens   []string
	interval time.Duration
	next     int
}

func (s *scriptStream) Recv() (string, error) {
	if s.next >= len(s.tokens) {
		return "", io.EOF
	}

	if s.interval > 0 {
		select {
		case <-time.After(s.interval):
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	} else if err := s.ctx.Err(); err != nil {
		return "", err
	}

	tok := s.tokens[s.next]
	s.next++
	return tok, nil
}

func (s *scriptStream) Close() {}
