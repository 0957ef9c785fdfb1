package blocks

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// BlockType discriminates the closed set of content block variants.
type BlockType string

const (
	BlockTypeText      BlockType = "text"
	BlockTypeReasoning BlockType = "reasoning"
	BlockTypeToolCall  BlockType = "tool_call"
	BlockTypeError     BlockType = "error"
)

// ContentBlock is one typed fragment of an assistant message's structured
// content. The JSON shape matches the wire format used by the backend for
// both SeedBlocks payloads and persisted message content.
//
// Within one message, blocks appear in emission order. A reasoning block's
// IsCompleted flips false→true exactly once; a tool_call block carries
// ToolResult only once completed.
type ContentBlock struct {
	Type    BlockType `json:"type"`
	Content string    `json:"content,omitempty"`

	// tool_call fields
	ID         string         `json:"id,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	ToolArgs   map[string]any `json:"toolArgs,omitempty"`
	ToolResult *string        `json:"toolResult,omitempty"`

	// reasoning and tool_call completion flag
	IsCompleted bool `json:"isCompleted,omitempty"`

	// error blocks produced by the backend carry a timestamp; the local
	// reducer never sets it, keeping replay deterministic
	Timestamp string `json:"timestamp,omitempty"`
}

func NewTextBlock(content string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Content: content}
}

func NewReasoningBlock(content string, completed bool) ContentBlock {
	return ContentBlock{Type: BlockTypeReasoning, Content: content, IsCompleted: completed}
}

func NewToolCallBlock(id string, toolName string, toolArgs map[string]any) ContentBlock {
	return ContentBlock{
		Type:     BlockTypeToolCall,
		ID:       id,
		ToolName: toolName,
		ToolArgs: toolArgs,
	}
}

func NewErrorBlock(content string) ContentBlock {
	return ContentBlock{Type: BlockTypeError, Content: content}
}

// Clone returns a copy that shares no mutable state with the receiver.
func (b ContentBlock) Clone() ContentBlock {
	out := b
	if b.ToolArgs != nil {
		args := make(map[string]any, len(b.ToolArgs))
		for k, v := range b.ToolArgs {
			args[k] = v
		}
		out.ToolArgs = args
	}
	if b.ToolResult != nil {
		res := *b.ToolResult
		out.ToolResult = &res
	}
	return out
}

// CloneBlocks deep-copies a block slice.
func CloneBlocks(bs []ContentBlock) []ContentBlock {
	if bs == nil {
		return nil
	}
	out := make([]ContentBlock, len(bs))
	for i, b := range bs {
		out[i] = b.Clone()
	}
	return out
}

// ParseBlocks decodes a JSON array of content blocks, rejecting unknown
// block types so that a corrupted seed fails loudly instead of producing an
// inconsistent message.
func ParseBlocks(raw []byte) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var bs []ContentBlock
	if err := json.Unmarshal(raw, &bs); err != nil {
		return nil, errors.Wrap(err, "could not decode content blocks")
	}
	for i, b := range bs {
		switch b.Type {
		case BlockTypeText, BlockTypeReasoning, BlockTypeToolCall, BlockTypeError:
		default:
			return nil, errors.Errorf("block %d has unknown type %q", i, b.Type)
		}
	}
	return bs, nil
}

// PlainText concatenates the text block contents, the shape used for chat
// title generation and clipboard export.
func PlainText(bs []ContentBlock) string {
	out := ""
	for _, b := range bs {
		if b.Type == BlockTypeText {
			out += b.Content
		}
	}
	return out
}
