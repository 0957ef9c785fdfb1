package chat

import (
	"github.com/rs/zerolog"

	"github.com/go-go-golems/burattino/pkg/blocks"
)

// RunUpdate is the coalesced snapshot published on the run topic. Each
// update carries the full reconstructed block list for the assistant
// message, not a delta, so consumers can render from any single update.
type RunUpdate struct {
	RunID     string                `json:"runId"`
	ChatID    string                `json:"chatId"`
	MessageID string                `json:"messageId"`
	State     RunState              `json:"state"`
	Blocks    []blocks.ContentBlock `json:"blocks"`
	Error     string                `json:"error,omitempty"`
}

func (u RunUpdate) MarshalZerologObject(e *zerolog.Event) {
	e.Str("run_id", u.RunID).
		Str("chat_id", u.ChatID).
		Str("message_id", u.MessageID).
		Str("state", string(u.State)).
		Int("num_blocks", len(u.Blocks))
}
