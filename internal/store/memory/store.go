package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/miluhq/milu/internal/model/message"
)

// Store keeps messages in process memory: a flat record map plus a
// secondary index keyed by parent id for child lookup. Suitable for
// development and tests when no database is configured.
type Store struct {
	mu       sync.RWMutex
	records  map[string]message.Message
	children map[string][]string
	roots    []string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		records:  make(map[string]message.Message),
		children: make(map[string][]string),
	}
}

// Create inserts a message, assigning a UUID when the id is empty.
func (s *Store) Create(_ context.Context, msg message.Message) (message.Message, error) {
	if msg.Role == "" {
		return message.Message{}, fmt.Errorf("%w: role is required", message.ErrConstraint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	} else if _, ok := s.records[msg.ID]; ok {
		return message.Message{}, fmt.Errorf("%w: duplicate id %s", message.ErrConstraint, msg.ID)
	}

	if msg.ParentID != nil {
		if _, ok := s.records[*msg.ParentID]; !ok {
			return message.Message{}, fmt.Errorf("%w: parent %s does not exist", message.ErrConstraint, *msg.ParentID)
		}
		s.children[*msg.ParentID] = append(s.children[*msg.ParentID], msg.ID)
	} else {
		s.roots = append(s.roots, msg.ID)
	}

	s.records[msg.ID] = msg
	return msg, nil
}

// Get returns the message with the given id.
func (s *Store) Get(_ context.Context, id string) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.records[id]
	if !ok {
		return message.Message{}, message.ErrNotFound
	}
	return msg, nil
}

// Update mutates the mutable fields of an existing message.
func (s *Store) Update(_ context.Context, id string, in message.UpdateInput) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.records[id]
	if !ok {
		return message.Message{}, message.ErrNotFound
	}

	if in.Content != nil {
		msg.Content = in.Content
	}
	if in.Status != nil {
		msg.Status = in.Status
	}
	if in.ExternalID != nil {
		msg.ExternalID = in.ExternalID
	}

	s.records[id] = msg
	return msg, nil
}

// ListChildren returns the messages whose parent is id, in insertion order.
func (s *Store) ListChildren(_ context.Context, id string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[id]; !ok {
		return nil, message.ErrNotFound
	}

	ids := s.children[id]
	out := make([]message.Message, 0, len(ids))
	for _, childID := range ids {
		out = append(out, s.records[childID])
	}
	return out, nil
}

// ListRoots returns the messages without a parent, in insertion order.
func (s *Store) ListRoots(_ context.Context) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]message.Message, 0, len(s.roots))
	for _, id := range s.roots {
		out = append(out, s.records[id])
	}
	return out, nil
}

// Delete removes a message. Messages that still have children are kept.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.records[id]
	if !ok {
		return message.ErrNotFound
	}
	if len(s.children[id]) > 0 {
		return fmt.Errorf("%w: message %s still has children", message.ErrConstraint, id)
	}

	delete(s.records, id)
	delete(s.children, id)
	if msg.ParentID != nil {
		s.children[*msg.ParentID] = remove(s.children[*msg.ParentID], id)
	} else {
		s.roots = remove(s.roots, id)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

func remove(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
