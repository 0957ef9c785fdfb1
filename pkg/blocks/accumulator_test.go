package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/burattino/pkg/events"
)

func reduceAll(s State, evs ...events.Event) State {
	for _, ev := range evs {
		s = Reduce(s, ev)
	}
	return s
}

func toolStarted(id string, name string) *events.EventToolCallStarted {
	return events.NewToolCallStartedEvent(events.ToolPayload{ID: id, ToolName: name})
}

func toolCompleted(id string, result string) *events.EventToolCallCompleted {
	return events.NewToolCallCompletedEvent(events.ToolPayload{ID: id, ToolResult: &result, IsCompleted: true})
}

func TestReduce_PlainTextRun(t *testing.T) {
	s := reduceAll(State{},
		events.NewRunStartedEvent("sess-1"),
		events.NewAssistantMessageIDEvent("msg-1"),
		events.NewRunContentEvent("Hello"),
		events.NewRunContentEvent(", world"),
		events.NewRunCompletedEvent(),
	)

	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, "msg-1", s.MessageID)
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, BlockTypeText, s.Blocks[0].Type)
	assert.Equal(t, "Hello, world", s.Blocks[0].Content)
	assert.Empty(t, s.OpenText)
}

func TestReduce_ReasoningThenText(t *testing.T) {
	s := reduceAll(State{},
		events.NewReasoningStartedEvent(),
		events.NewReasoningStepEvent("thinking "),
		events.NewReasoningStepEvent("hard"),
		events.NewReasoningCompletedEvent(),
		events.NewRunContentEvent("Answer"),
		events.NewRunCompletedEvent(),
	)

	require.Len(t, s.Blocks, 2)
	assert.Equal(t, BlockTypeReasoning, s.Blocks[0].Type)
	assert.Equal(t, "thinking hard", s.Blocks[0].Content)
	assert.True(t, s.Blocks[0].IsCompleted)
	assert.Equal(t, BlockTypeText, s.Blocks[1].Type)
	assert.Equal(t, "Answer", s.Blocks[1].Content)
}

func TestReduce_ContentFinalizesOpenReasoning(t *testing.T) {
	// no explicit ReasoningCompleted before text starts
	s := reduceAll(State{},
		events.NewReasoningStepEvent("planning"),
		events.NewRunContentEvent("Result"),
	)

	require.Len(t, s.Blocks, 1)
	assert.Equal(t, BlockTypeReasoning, s.Blocks[0].Type)
	assert.True(t, s.Blocks[0].IsCompleted)
	assert.Equal(t, "Result", s.OpenText)
}

func TestReduce_ToolCallInterleavedWithText(t *testing.T) {
	s := reduceAll(State{},
		events.NewRunContentEvent("Let me check. "),
		toolStarted("t-1", "search"),
		toolCompleted("t-1", "42"),
		events.NewRunContentEvent("It is 42."),
		events.NewRunCompletedEvent(),
	)

	require.Len(t, s.Blocks, 3)
	assert.Equal(t, BlockTypeText, s.Blocks[0].Type)
	assert.Equal(t, "Let me check. ", s.Blocks[0].Content)

	tool := s.Blocks[1]
	assert.Equal(t, BlockTypeToolCall, tool.Type)
	assert.Equal(t, "search", tool.ToolName)
	assert.True(t, tool.IsCompleted)
	require.NotNil(t, tool.ToolResult)
	assert.Equal(t, "42", *tool.ToolResult)

	assert.Equal(t, "It is 42.", s.Blocks[2].Content)
}

func TestReduce_ContiguousTextReopensLastBlock(t *testing.T) {
	// text, flush via reasoning, reasoning never produces content, more text:
	// the two text runs stay adjacent and merge into one block
	s := reduceAll(State{},
		events.NewRunContentEvent("abc"),
		events.NewReasoningStartedEvent(),
		events.NewRunContentEvent("def"),
		events.NewRunCompletedEvent(),
	)

	require.Len(t, s.Blocks, 1)
	assert.Equal(t, "abcdef", s.Blocks[0].Content)
}

func TestReduce_AtMostOneOpenBuffer(t *testing.T) {
	s := reduceAll(State{},
		events.NewRunContentEvent("text"),
		events.NewReasoningStepEvent("reason"),
	)

	// text was flushed when reasoning opened
	assert.Empty(t, s.OpenText)
	assert.Equal(t, "reason", s.OpenReasoning)
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, BlockTypeText, s.Blocks[0].Type)
}

func TestReduce_SeedBlocksReplaceWholesale(t *testing.T) {
	s := reduceAll(State{},
		events.NewRunContentEvent("stale"),
	)
	seed, err := events.ParseEvent("SeedBlocks", []byte(`{"blocks": [
		{"type": "text", "content": "earlier answer"},
		{"type": "error", "content": "previous failure"}
	]}`))
	require.NoError(t, err)

	s = Reduce(s, seed)

	// seeded blocks replace everything, trailing error blocks are stripped
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, "earlier answer", s.Blocks[0].Content)
	assert.Empty(t, s.OpenText)

	s = reduceAll(s,
		events.NewRunContentEvent(" continued"),
		events.NewRunCompletedEvent(),
	)
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, "earlier answer continued", s.Blocks[0].Content)
}

func TestReduce_UndecodableSeedIgnored(t *testing.T) {
	seed, err := events.ParseEvent("SeedBlocks", []byte(`{"blocks": [{"type": "mystery"}]}`))
	require.NoError(t, err)

	before := reduceAll(State{}, events.NewRunContentEvent("keep"))
	after := Reduce(before, seed)
	assert.Equal(t, before, after)
}

func TestReduce_ToolCompletionMatchesMostRecent(t *testing.T) {
	// duplicate ids: the completion closes the most recent open block
	s := reduceAll(State{},
		toolStarted("t-1", "search"),
		toolStarted("t-1", "search"),
		toolCompleted("t-1", "second"),
	)

	require.Len(t, s.Blocks, 2)
	assert.False(t, s.Blocks[0].IsCompleted)
	assert.True(t, s.Blocks[1].IsCompleted)
	assert.Equal(t, "second", *s.Blocks[1].ToolResult)

	// a second completion is treated as a duplicate of the most recent
	// block, not routed to the earlier one
	s = Reduce(s, toolCompleted("t-1", "again"))
	assert.False(t, s.Blocks[0].IsCompleted)
	assert.Equal(t, "second", *s.Blocks[1].ToolResult)
}

func TestReduce_ToolCompletionWithoutStartDropped(t *testing.T) {
	s := reduceAll(State{}, toolCompleted("ghost", "x"))
	assert.Empty(t, s.Blocks)
}

func TestReduce_DuplicateToolCompletionIgnored(t *testing.T) {
	s := reduceAll(State{},
		toolStarted("t-1", "search"),
		toolCompleted("t-1", "first"),
		toolCompleted("t-1", "second"),
	)

	require.Len(t, s.Blocks, 1)
	assert.Equal(t, "first", *s.Blocks[0].ToolResult)
}

func TestReduce_RunErrorAppendsErrorBlock(t *testing.T) {
	s := reduceAll(State{},
		events.NewRunContentEvent("partial"),
		events.NewRunErrorEvent("rate limited"),
	)

	require.Len(t, s.Blocks, 2)
	assert.Equal(t, BlockTypeText, s.Blocks[0].Type)
	assert.Equal(t, "partial", s.Blocks[0].Content)
	assert.Equal(t, BlockTypeError, s.Blocks[1].Type)
	assert.Equal(t, "rate limited", s.Blocks[1].Content)
	assert.Empty(t, s.Blocks[1].Timestamp)
}

func TestReduce_CancelFlushesBuffers(t *testing.T) {
	ev, err := events.ParseEvent("RunCancelled", []byte(`{}`))
	require.NoError(t, err)

	s := reduceAll(State{},
		events.NewRunContentEvent("Hel"),
		ev,
	)

	require.Len(t, s.Blocks, 1)
	assert.Equal(t, "Hel", s.Blocks[0].Content)
	assert.Empty(t, s.OpenText)
}

func TestReduce_InputStateNotMutated(t *testing.T) {
	base := reduceAll(State{},
		events.NewRunContentEvent("shared"),
		events.NewRunCompletedEvent(),
	)
	snapshot := CloneBlocks(base.Blocks)

	_ = reduceAll(base,
		toolStarted("t-1", "search"),
		toolCompleted("t-1", "r"),
		events.NewRunContentEvent(" more"),
	)

	assert.Equal(t, snapshot, base.Blocks)
}

func TestReduce_ReplayIsDeterministic(t *testing.T) {
	evs := []events.Event{
		events.NewRunStartedEvent("s"),
		events.NewReasoningStepEvent("think"),
		events.NewRunContentEvent("a"),
		toolStarted("t-1", "calc"),
		toolCompleted("t-1", "3"),
		events.NewRunContentEvent("b"),
		events.NewRunCompletedEvent(),
	}

	first := reduceAll(State{}, evs...)
	second := reduceAll(State{}, evs...)
	assert.Equal(t, first, second)
}

func TestView_IncludesProvisionalBuffers(t *testing.T) {
	s := reduceAll(State{}, events.NewRunContentEvent("stream"))
	view := s.View()

	require.Len(t, view, 1)
	assert.Equal(t, BlockTypeText, view[0].Type)
	assert.Equal(t, "stream", view[0].Content)

	s = reduceAll(s, events.NewReasoningStepEvent("mid"))
	view = s.View()
	require.Len(t, view, 2)
	assert.Equal(t, BlockTypeReasoning, view[1].Type)
	assert.False(t, view[1].IsCompleted)
}

func TestPlainText(t *testing.T) {
	bs := []ContentBlock{
		NewTextBlock("a"),
		NewReasoningBlock("hidden", true),
		NewToolCallBlock("t", "f", nil),
		NewTextBlock("b"),
	}
	assert.Equal(t, "ab", PlainText(bs))
}

func TestParseBlocks_RejectsUnknownType(t *testing.T) {
	_, err := ParseBlocks([]byte(`[{"type": "hologram"}]`))
	require.Error(t, err)
}
