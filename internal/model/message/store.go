package message

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals a lookup for an id with no matching record.
	ErrNotFound = errors.New("message not found")
	// ErrConstraint signals a write the schema forbids: a missing role,
	// a parent_id that references no record, a duplicate id, or deleting
	// a message that still has children.
	ErrConstraint = errors.New("constraint violation")
)

// UpdateInput carries the mutable fields of a message. Nil fields are
// left untouched.
type UpdateInput struct {
	Content    *string
	Status     *string
	ExternalID *string
}

// Store persists messages and their parent/child linkage. Implementations
// must assign a random UUID when Create is given an empty id, and must
// enforce that parent_id always references an existing record.
type Store interface {
	// Create inserts a message and returns it with its id populated.
	Create(ctx context.Context, msg Message) (Message, error)

	// Get returns the message with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Message, error)

	// Update mutates content, status and external_id of an existing
	// message and returns the updated record.
	Update(ctx context.Context, id string, in UpdateInput) (Message, error)

	// ListChildren returns the messages whose parent_id equals id, in
	// insertion order. The slice is empty when the message is a leaf;
	// ErrNotFound is returned when the message itself does not exist.
	ListChildren(ctx context.Context, id string) ([]Message, error)

	// ListRoots returns the messages that have no parent, in insertion
	// order.
	ListRoots(ctx context.Context) ([]Message, error)

	// Delete removes a message. It returns ErrConstraint while children
	// still reference the message as their parent.
	Delete(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close()
}
