package events

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// Run lifecycle
	EventTypeRunStarted   EventType = "RunStarted"
	EventTypeRunCompleted EventType = "RunCompleted"
	EventTypeRunError     EventType = "RunError"
	// Backend acknowledged a cancel request mid-stream
	EventTypeRunCancelled EventType = "RunCancelled"

	// Backend-assigned id for the assistant message being generated
	EventTypeAssistantMessageID EventType = "AssistantMessageId"

	// Continuation flows replace the block list wholesale before streaming resumes
	EventTypeSeedBlocks EventType = "SeedBlocks"

	// Streamed assistant text
	EventTypeRunContent EventType = "RunContent"

	// Reasoning text is streamed on a separate track and finalized exactly once
	EventTypeReasoningStarted   EventType = "ReasoningStarted"
	EventTypeReasoningStep      EventType = "ReasoningStep"
	EventTypeReasoningCompleted EventType = "ReasoningCompleted"

	// Tool invocations (opened by the provider, closed with a result)
	EventTypeToolCallStarted   EventType = "ToolCallStarted"
	EventTypeToolCallCompleted EventType = "ToolCallCompleted"
)

// ErrUnknownEvent is returned by ParseEvent for event names outside the
// recognized set. Callers are expected to log and skip, not abort.
var ErrUnknownEvent = errors.New("unknown event type")

type Event interface {
	Type() EventType
	Payload() []byte
}

type EventImpl struct {
	Type_ EventType `json:"event"`

	// raw JSON payload the event was decoded from
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

// SetPayload stores the raw JSON payload on the event implementation.
func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

func (e *EventImpl) setType(t EventType) {
	e.Type_ = t
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("event", string(e.Type_))
}

var _ Event = &EventImpl{}

type EventRunStarted struct {
	EventImpl
	SessionID string `json:"sessionId"`
}

func NewRunStartedEvent(sessionID string) *EventRunStarted {
	return &EventRunStarted{
		EventImpl: EventImpl{Type_: EventTypeRunStarted},
		SessionID: sessionID,
	}
}

var _ Event = &EventRunStarted{}

// EventAssistantMessageID carries the backend-assigned message id in its
// content field, matching the wire format.
type EventAssistantMessageID struct {
	EventImpl
	Content string `json:"content"`
}

func NewAssistantMessageIDEvent(messageID string) *EventAssistantMessageID {
	return &EventAssistantMessageID{
		EventImpl: EventImpl{Type_: EventTypeAssistantMessageID},
		Content:   messageID,
	}
}

var _ Event = &EventAssistantMessageID{}

// EventSeedBlocks keeps the block list as raw JSON so that this package does
// not depend on the block accumulator; the consumer parses it.
type EventSeedBlocks struct {
	EventImpl
	Blocks json.RawMessage `json:"blocks"`
}

var _ Event = &EventSeedBlocks{}

type EventRunContent struct {
	EventImpl
	Content string `json:"content"`
}

func NewRunContentEvent(content string) *EventRunContent {
	return &EventRunContent{
		EventImpl: EventImpl{Type_: EventTypeRunContent},
		Content:   content,
	}
}

func (e EventRunContent) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("content", e.Content)
}

var _ Event = &EventRunContent{}

type EventReasoningStarted struct {
	EventImpl
}

func NewReasoningStartedEvent() *EventReasoningStarted {
	return &EventReasoningStarted{EventImpl: EventImpl{Type_: EventTypeReasoningStarted}}
}

var _ Event = &EventReasoningStarted{}

type EventReasoningStep struct {
	EventImpl
	ReasoningContent string `json:"reasoningContent"`
}

func NewReasoningStepEvent(reasoningContent string) *EventReasoningStep {
	return &EventReasoningStep{
		EventImpl:        EventImpl{Type_: EventTypeReasoningStep},
		ReasoningContent: reasoningContent,
	}
}

var _ Event = &EventReasoningStep{}

type EventReasoningCompleted struct {
	EventImpl
}

func NewReasoningCompletedEvent() *EventReasoningCompleted {
	return &EventReasoningCompleted{EventImpl: EventImpl{Type_: EventTypeReasoningCompleted}}
}

var _ Event = &EventReasoningCompleted{}

// ToolPayload is the tool object attached to ToolCallStarted and
// ToolCallCompleted events.
type ToolPayload struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"toolName"`
	ToolArgs    map[string]any `json:"toolArgs,omitempty"`
	ToolResult  *string        `json:"toolResult,omitempty"`
	IsCompleted bool           `json:"isCompleted,omitempty"`
}

func (tp ToolPayload) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", tp.ID).Str("tool_name", tp.ToolName)
	if tp.ToolResult != nil {
		ev.Str("tool_result", *tp.ToolResult)
	}
}

type EventToolCallStarted struct {
	EventImpl
	Tool ToolPayload `json:"tool"`
}

func NewToolCallStartedEvent(tool ToolPayload) *EventToolCallStarted {
	return &EventToolCallStarted{
		EventImpl: EventImpl{Type_: EventTypeToolCallStarted},
		Tool:      tool,
	}
}

func (e EventToolCallStarted) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Object("tool", e.Tool)
}

var _ Event = &EventToolCallStarted{}

type EventToolCallCompleted struct {
	EventImpl
	Tool ToolPayload `json:"tool"`
}

func NewToolCallCompletedEvent(tool ToolPayload) *EventToolCallCompleted {
	return &EventToolCallCompleted{
		EventImpl: EventImpl{Type_: EventTypeToolCallCompleted},
		Tool:      tool,
	}
}

func (e EventToolCallCompleted) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Object("tool", e.Tool)
}

var _ Event = &EventToolCallCompleted{}

type EventRunCompleted struct {
	EventImpl
	Content string `json:"content,omitempty"`
}

func NewRunCompletedEvent() *EventRunCompleted {
	return &EventRunCompleted{EventImpl: EventImpl{Type_: EventTypeRunCompleted}}
}

var _ Event = &EventRunCompleted{}

// EventRunError carries the backend-supplied error text either in the error
// field or, for older producers, in content.
type EventRunError struct {
	EventImpl
	Error   string `json:"error,omitempty"`
	Content string `json:"content,omitempty"`
}

func NewRunErrorEvent(errText string) *EventRunError {
	return &EventRunError{
		EventImpl: EventImpl{Type_: EventTypeRunError},
		Error:     errText,
	}
}

// ErrorText returns the error message regardless of which wire field carried it.
func (e *EventRunError) ErrorText() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Content
}

func (e EventRunError) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("error", e.ErrorText())
}

var _ Event = &EventRunError{}

type EventRunCancelled struct {
	EventImpl
}

func NewRunCancelledEvent() *EventRunCancelled {
	return &EventRunCancelled{EventImpl: EventImpl{Type_: EventTypeRunCancelled}}
}

var _ Event = &EventRunCancelled{}

// ParseEvent decodes the JSON payload of a single frame into a typed event.
// The event name comes from the framing layer, not from the payload, so the
// payload's own event field (if any) is ignored.
func ParseEvent(name string, payload []byte) (Event, error) {
	typ := EventType(name)

	var ev Event
	switch typ {
	case EventTypeRunStarted:
		ev = &EventRunStarted{}
	case EventTypeAssistantMessageID:
		ev = &EventAssistantMessageID{}
	case EventTypeSeedBlocks:
		ev = &EventSeedBlocks{}
	case EventTypeRunContent:
		ev = &EventRunContent{}
	case EventTypeReasoningStarted:
		ev = &EventReasoningStarted{}
	case EventTypeReasoningStep:
		ev = &EventReasoningStep{}
	case EventTypeReasoningCompleted:
		ev = &EventReasoningCompleted{}
	case EventTypeToolCallStarted:
		ev = &EventToolCallStarted{}
	case EventTypeToolCallCompleted:
		ev = &EventToolCallCompleted{}
	case EventTypeRunCompleted:
		ev = &EventRunCompleted{}
	case EventTypeRunError:
		ev = &EventRunError{}
	case EventTypeRunCancelled:
		ev = &EventRunCancelled{}
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "%s", name)
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, errors.Wrapf(err, "could not decode %s payload", name)
		}
	}

	if setter, ok := ev.(interface{ SetPayload([]byte) }); ok {
		setter.SetPayload(payload)
	}
	// the framing layer is authoritative for the type
	if setter, ok := ev.(interface{ setType(EventType) }); ok {
		setter.setType(typ)
	}

	return ev, nil
}
