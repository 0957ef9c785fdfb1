package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/burattino/pkg/blocks"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one entry in a conversation. Its ID is stable across interim
// and authoritative versions so consumers keyed on it never remount.
//
// User and system messages carry plain text in Content; assistant messages
// carry an ordered ContentBlock sequence in Blocks.
type Message struct {
	ID      string               `json:"id"`
	Role    Role                 `json:"role"`
	Content string               `json:"content,omitempty"`
	Blocks  []blocks.ContentBlock `json:"blocks,omitempty"`

	ParentID   string    `json:"parentMessageId,omitempty"`
	IsComplete bool      `json:"isComplete"`
	Sequence   int       `json:"sequence,omitempty"`
	ModelUsed  string    `json:"modelUsed,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// messageAlias mirrors the backend's wire shape, where content is either a
// plain string or a structured block array.
type messageAlias struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ParentID   string          `json:"parentMessageId,omitempty"`
	IsComplete bool            `json:"isComplete"`
	Sequence   int             `json:"sequence,omitempty"`
	ModelUsed  string          `json:"modelUsed,omitempty"`
	CreatedAt  time.Time       `json:"createdAt,omitempty"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var ma messageAlias
	if err := json.Unmarshal(data, &ma); err != nil {
		return err
	}

	m.ID = ma.ID
	m.Role = ma.Role
	m.ParentID = ma.ParentID
	m.IsComplete = ma.IsComplete
	m.Sequence = ma.Sequence
	m.ModelUsed = ma.ModelUsed
	m.CreatedAt = ma.CreatedAt

	if len(ma.Content) == 0 || string(ma.Content) == "null" {
		return nil
	}
	if ma.Content[0] == '[' {
		bs, err := blocks.ParseBlocks(ma.Content)
		if err != nil {
			return err
		}
		m.Blocks = bs
		return nil
	}
	return json.Unmarshal(ma.Content, &m.Content)
}

func (m Message) MarshalJSON() ([]byte, error) {
	ma := messageAlias{
		ID:         m.ID,
		Role:       m.Role,
		ParentID:   m.ParentID,
		IsComplete: m.IsComplete,
		Sequence:   m.Sequence,
		ModelUsed:  m.ModelUsed,
		CreatedAt:  m.CreatedAt,
	}
	var err error
	if m.Blocks != nil {
		ma.Content, err = json.Marshal(m.Blocks)
	} else {
		ma.Content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(ma)
}

// NewUserMessage creates a complete user message with a fresh id.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Role:       RoleUser,
		Content:    text,
		IsComplete: true,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewAssistantPlaceholder creates the optimistic, empty assistant message a
// run streams into.
func NewAssistantPlaceholder(modelUsed string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Role:       RoleAssistant,
		IsComplete: false,
		ModelUsed:  modelUsed,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Blocks = blocks.CloneBlocks(m.Blocks)
	return &out
}

// Sibling is an alternate version of a message occupying the same position
// in the conversation tree, as reported by the backend.
type Sibling struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	IsComplete bool      `json:"isComplete"`
	ModelUsed  string    `json:"modelUsed,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// ChatInfo is the lightweight chat record returned by the backend's listing
// calls; messages are loaded separately.
type ChatInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
