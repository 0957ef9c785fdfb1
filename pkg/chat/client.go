package chat

import (
	"context"
	"io"

	"github.com/go-go-golems/burattino/pkg/conversation"
)

// Backend is the generation and chat-retrieval collaborator the engine
// consumes. Streaming calls return the raw event stream body; the engine
// does its own framing and accumulation. Persistence, model configuration
// and auth all live behind this interface.
type Backend interface {
	// StartGeneration sends the conversation and opens the event stream for
	// a fresh assistant turn.
	StartGeneration(ctx context.Context, messages []*conversation.Message, modelID string, chatID string) (io.ReadCloser, error)
	// ContinueGeneration resumes an incomplete assistant message; the
	// backend seeds the stream with the message's existing blocks.
	ContinueGeneration(ctx context.Context, messageID string, chatID string) (io.ReadCloser, error)
	// RetryGeneration regenerates an assistant message as a new sibling.
	RetryGeneration(ctx context.Context, messageID string, chatID string, modelID string) (io.ReadCloser, error)
	// EditAndRegenerate rewrites a user message and regenerates everything
	// after it, branching the tree at the edit point.
	EditAndRegenerate(ctx context.Context, messageID string, newContent string, chatID string) (io.ReadCloser, error)
	// CancelGeneration asks the backend to stop the run that owns the
	// message; the returned flag reports whether anything was cancelled.
	CancelGeneration(ctx context.Context, messageID string) (bool, error)

	// GetConversation fetches the authoritative message sequence for the
	// visible branch of a chat.
	GetConversation(ctx context.Context, chatID string) ([]*conversation.Message, error)
	GetSiblings(ctx context.Context, messageID string) ([]conversation.Sibling, error)
	SwitchSibling(ctx context.Context, messageID string, siblingID string, chatID string) error

	// Chat record management.
	ListChats(ctx context.Context) ([]conversation.ChatInfo, error)
	CreateChat(ctx context.Context, title string, modelID string) (conversation.ChatInfo, error)
	UpdateChat(ctx context.Context, chatID string, title string, modelID string) error
	DeleteChat(ctx context.Context, chatID string) error
}
