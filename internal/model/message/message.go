package message

// Roles a message can carry. The role decides where a message may sit in
// the conversation tree and whether its content is written by the caller
// or generated afterwards.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Statuses of an assistant message while its content is being generated.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusFinished   = "finished"
	StatusError      = "error"
)

// Message is one node in a conversation tree. Nullable columns are
// pointers so that an absent value survives a round trip through the
// store and the JSON surface.
type Message struct {
	ID         string  `json:"id"`
	Role       string  `json:"role"`
	Content    *string `json:"content,omitempty"`
	ParentID   *string `json:"parentId,omitempty"`
	Status     *string `json:"status,omitempty"`
	ExternalID *string `json:"externalId,omitempty"`
}

// Root reports whether the message has no parent.
func (m Message) Root() bool {
	return m.ParentID == nil
}
