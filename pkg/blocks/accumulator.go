package blocks

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/burattino/pkg/events"
)

// State is the accumulator state after some prefix of a run's event
// sequence: the finalized blocks plus the open text and reasoning buffers.
// It is a value; Reduce never mutates its input, so replaying the same event
// sequence from the zero State is deterministic and prefixes can be kept
// around for inspection.
type State struct {
	SessionID string
	MessageID string

	Blocks        []ContentBlock
	OpenText      string
	OpenReasoning string
}

// Reduce applies a single event to the state and returns the successor
// state. Unknown event types leave the state unchanged.
//
// At most one buffer is open at any time: text is flushed before reasoning
// or tool blocks open, and an open reasoning buffer is finalized before text
// resumes, mirroring the producer's own flush discipline.
func Reduce(s State, ev events.Event) State {
	switch e := ev.(type) {
	case *events.EventRunStarted:
		s.SessionID = e.SessionID

	case *events.EventAssistantMessageID:
		s.MessageID = e.Content

	case *events.EventSeedBlocks:
		seeded, err := ParseBlocks(e.Blocks)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring undecodable seed blocks")
			return s
		}
		// a resumed message never starts from a trailing error block
		for len(seeded) > 0 && seeded[len(seeded)-1].Type == BlockTypeError {
			seeded = seeded[:len(seeded)-1]
		}
		s.Blocks = CloneBlocks(seeded)
		s.OpenText = ""
		s.OpenReasoning = ""

	case *events.EventRunContent:
		if s.OpenReasoning != "" && s.OpenText == "" {
			s = s.finalizeReasoning()
		}
		if s.OpenText == "" {
			// keep contiguous text in a single block: re-open the previous
			// text block instead of starting an adjacent one
			if n := len(s.Blocks); n > 0 && s.Blocks[n-1].Type == BlockTypeText {
				s.OpenText = s.Blocks[n-1].Content
				s.Blocks = CloneBlocks(s.Blocks[:n-1])
			}
		}
		s.OpenText += e.Content

	case *events.EventReasoningStarted:
		s = s.flushText()

	case *events.EventReasoningStep:
		s = s.flushText()
		s.OpenReasoning += e.ReasoningContent

	case *events.EventReasoningCompleted:
		s = s.finalizeReasoning()

	case *events.EventToolCallStarted:
		s = s.flushText()
		s = s.finalizeReasoning()
		s = s.appendBlock(NewToolCallBlock(e.Tool.ID, e.Tool.ToolName, e.Tool.ToolArgs))

	case *events.EventToolCallCompleted:
		s = s.completeToolCall(e.Tool)

	case *events.EventRunCompleted, *events.EventRunCancelled:
		s = s.flushText()
		s = s.finalizeReasoning()

	case *events.EventRunError:
		s = s.flushText()
		s = s.finalizeReasoning()
		s = s.appendBlock(NewErrorBlock(e.ErrorText()))

	default:
		log.Debug().Str("event", string(ev.Type())).Msg("accumulator ignoring event")
	}

	return s
}

// View returns the current renderable block sequence: finalized blocks
// followed by the open buffers as provisional, non-final blocks. The result
// is a fresh slice safe to hand to consumers.
func (s State) View() []ContentBlock {
	out := CloneBlocks(s.Blocks)
	if s.OpenText != "" {
		out = append(out, NewTextBlock(s.OpenText))
	}
	if s.OpenReasoning != "" {
		out = append(out, NewReasoningBlock(s.OpenReasoning, false))
	}
	return out
}

func (s State) appendBlock(b ContentBlock) State {
	bs := CloneBlocks(s.Blocks)
	s.Blocks = append(bs, b)
	return s
}

func (s State) flushText() State {
	if s.OpenText == "" {
		return s
	}
	s = s.appendBlock(NewTextBlock(s.OpenText))
	s.OpenText = ""
	return s
}

func (s State) finalizeReasoning() State {
	if s.OpenReasoning == "" {
		return s
	}
	s = s.appendBlock(NewReasoningBlock(s.OpenReasoning, true))
	s.OpenReasoning = ""
	return s
}

// completeToolCall locates the most recent tool_call block with a matching
// id, scanning from the end, and closes it with the result. Duplicate open
// ids are backend misbehavior; most-recent-match is the documented
// tie-break. A completion without a prior start is logged and dropped.
func (s State) completeToolCall(tool events.ToolPayload) State {
	s = s.flushText()
	s = s.finalizeReasoning()

	for i := len(s.Blocks) - 1; i >= 0; i-- {
		b := s.Blocks[i]
		if b.Type != BlockTypeToolCall || b.ID != tool.ID {
			continue
		}
		if b.IsCompleted {
			log.Warn().Str("tool_id", tool.ID).Msg("tool call already completed, ignoring duplicate completion")
			return s
		}
		bs := CloneBlocks(s.Blocks)
		bs[i].IsCompleted = true
		bs[i].ToolResult = tool.ToolResult
		if tool.ToolName != "" {
			bs[i].ToolName = tool.ToolName
		}
		if tool.ToolArgs != nil {
			bs[i].ToolArgs = tool.ToolArgs
		}
		s.Blocks = bs
		return s
	}

	log.Warn().Str("tool_id", tool.ID).Msg("tool call completion without matching start, dropping")
	return s
}
