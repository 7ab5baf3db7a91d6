package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/miluhq/milu/internal/model/message"
	"github.com/miluhq/milu/internal/service/generate"
)

// Content of a generating assistant message is committed to the store
// every flushTokens tokens or flushInterval, whichever comes first.
const (
	defaultFlushTokens   = 5
	defaultFlushInterval = 3 * time.Second
)

// AppendOption carries the caller-supplied fields of a new message.
type AppendOption struct {
	Role       string
	Content    *string
	ExternalID *string
}

// Service owns the conversation tree: it validates appends, delegates
// persistence to the store, and generates assistant replies in the
// background while fanning their tokens out to subscribers.
type Service struct {
	store         message.Store
	generator     generate.Generator
	flushTokens   int
	flushInterval time.Duration

	mu    sync.Mutex
	feeds map[string]*feed
}

// Option adjusts service behavior.
type Option func(*Service)

// WithFlushPolicy overrides how often generated content is committed to
// the store.
func WithFlushPolicy(tokens int, interval time.Duration) Option {
	return func(s *Service) {
		if tokens < 1 {
			tokens = 1
		}
		s.flushTokens = tokens
		s.flushInterval = interval
	}
}

// New wires the service to a store and a token generator.
func New(store message.Store, generator generate.Generator, opts ...Option) *Service {
	s := &Service{
		store:         store,
		generator:     generator,
		flushTokens:   defaultFlushTokens,
		flushInterval: defaultFlushInterval,
		feeds:         make(map[string]*feed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message under the given parent. A nil parentID starts a
// new conversation. Role rules:
//   - system messages start a conversation and must carry content;
//   - user messages need a parent and must carry content;
//   - assistant messages need a parent, must not carry content, and are
//     generated asynchronously after the append returns.
func (s *Service) Append(ctx context.Context, parentID *string, opt AppendOption) (message.Message, error) {
	if err := validateAppend(parentID, opt); err != nil {
		return message.Message{}, err
	}

	msg := message.Message{
		Role:       opt.Role,
		Content:    opt.Content,
		ParentID:   parentID,
		ExternalID: opt.ExternalID,
	}
	if opt.Role == message.RoleAssistant {
		status := message.StatusPending
		msg.Status = &status
	}

	created, err := s.store.Create(ctx, msg)
	if err != nil {
		return message.Message{}, err
	}

	if created.Role == message.RoleAssistant {
		fd := newFeed()
		s.mu.Lock()
		s.feeds[created.ID] = fd
		s.mu.Unlock()
		go s.generateReply(created, fd)
	}

	return created, nil
}

func validateAppend(parentID *string, opt AppendOption) error {
	switch opt.Role {
	case message.RoleSystem:
		if parentID != nil {
			return fmt.Errorf("%w: a system message cannot have a parent", message.ErrConstraint)
		}
		if opt.Content == nil {
			return fmt.Errorf("%w: a system message requires content", message.ErrConstraint)
		}
	case message.RoleUser:
		if parentID == nil {
			return fmt.Errorf("%w: a user message requires a parent", message.ErrConstraint)
		}
		if opt.Content == nil {
			return fmt.Errorf("%w: a user message requires content", message.ErrConstraint)
		}
	case message.RoleAssistant:
		if parentID == nil {
			return fmt.Errorf("%w: an assistant message requires a parent", message.ErrConstraint)
		}
		if opt.Content != nil {
			return fmt.Errorf("%w: an assistant message cannot carry content", message.ErrConstraint)
		}
	case "":
		return fmt.Errorf("%w: role is required", message.ErrConstraint)
	default:
		return fmt.Errorf("%w: unknown role %q", message.ErrConstraint, opt.Role)
	}
	return nil
}

// Get returns a single message by id.
func (s *Service) Get(ctx context.Context, id string) (message.Message, error) {
	return s.store.Get(ctx, id)
}

// Update mutates the mutable fields of a message.
func (s *Service) Update(ctx context.Context, id string, in message.UpdateInput) (message.Message, error) {
	return s.store.Update(ctx, id, in)
}

// Children returns the messages appended under id, in insertion order.
func (s *Service) Children(ctx context.Context, id string) ([]message.Message, error) {
	return s.store.ListChildren(ctx, id)
}

// Roots returns the conversation entry points.
func (s *Service) Roots(ctx context.Context) ([]message.Message, error) {
	return s.store.ListRoots(ctx)
}

// Delete removes a message with no remaining children.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Subscribe attaches to the live token feed of a generating assistant
// message. The second return is false when no generation is in flight
// for that id.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan string, bool) {
	s.mu.Lock()
	fd, ok := s.feeds[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fd.subscribe(ctx), true
}

// generateReply runs in the background after an assistant append. It is
// detached from the request context on purpose: the reply keeps being
// written even when the appending client goes away.
func (s *Service) generateReply(msg message.Message, fd *feed) {
	ctx := context.Background()
	defer func() {
		s.mu.Lock()
		delete(s.feeds, msg.ID)
		s.mu.Unlock()
		fd.finish()
	}()

	s.setStatus(ctx, msg.ID, message.StatusGenerating)

	history, err := s.history(ctx, msg)
	if err != nil {
		log.Printf("[conversation] failed to load history for message=%s: %v", msg.ID, err)
		s.setStatus(ctx, msg.ID, message.StatusError)
		return
	}

	stream, err := s.generator.Stream(ctx, history)
	if err != nil {
		log.Printf("[conversation] failed to start generation for message=%s: %v", msg.ID, err)
		s.setStatus(ctx, msg.ID, message.StatusError)
		return
	}
	defer stream.Close()

	var content strings.Builder
	count := 0
	lastFlush := time.Now()
	for {
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("[conversation] generation failed for message=%s: %v", msg.ID, err)
			partial := content.String()
			errStatus := message.StatusError
			if _, err := s.store.Update(ctx, msg.ID, message.UpdateInput{Content: &partial, Status: &errStatus}); err != nil {
				log.Printf("[conversation] failed to record error state for message=%s: %v", msg.ID, err)
			}
			return
		}

		content.WriteString(token)
		count++
		fd.publish(token)

		if count%s.flushTokens == 0 || time.Since(lastFlush) >= s.flushInterval {
			partial := content.String()
			if _, err := s.store.Update(ctx, msg.ID, message.UpdateInput{Content: &partial}); err != nil {
				log.Printf("[conversation] failed to flush content for message=%s: %v", msg.ID, err)
			}
			lastFlush = time.Now()
		}
	}

	final := content.String()
	finished := message.StatusFinished
	if _, err := s.store.Update(ctx, msg.ID, message.UpdateInput{Content: &final, Status: &finished}); err != nil {
		log.Printf("[conversation] failed to finish message=%s: %v", msg.ID, err)
		return
	}
	log.Printf("[conversation] finished message=%s, tokens=%d", msg.ID, count)
}

// history collects the parent chain of msg from the root downwards,
// excluding msg itself.
func (s *Service) history(ctx context.Context, msg message.Message) ([]message.Message, error) {
	var chain []message.Message
	cursor := msg.ParentID
	for cursor != nil {
		parent, err := s.store.Get(ctx, *cursor)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		cursor = parent.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *Service) setStatus(ctx context.Context, id, status string) {
	if _, err := s.store.Update(ctx, id, message.UpdateInput{Status: &status}); err != nil {
		log.Printf("[conversation] failed to set status=%s for message=%s: %v", status, id, err)
	}
}
