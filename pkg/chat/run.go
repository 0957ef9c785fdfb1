package chat

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateStarting  RunState = "starting"
	RunStateStreaming RunState = "streaming"
	RunStateCompleted RunState = "completed"
	RunStateErrored   RunState = "errored"
	RunStateCancelled RunState = "cancelled"
)

func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateErrored, RunStateCancelled:
		return true
	}
	return false
}

// Run tracks a single in-flight generation. It is handed to the store as
// the active run handle and updated by the controller as the stream
// progresses.
type Run struct {
	mu sync.Mutex

	runID     string
	chatID    string
	messageID string
	state     RunState
	err       error

	cancel context.CancelFunc
	open   func(ctx context.Context) (io.ReadCloser, error)
	done   chan struct{}
}

func NewRun(chatID string, messageID string, open func(ctx context.Context) (io.ReadCloser, error)) *Run {
	return &Run{
		runID:     uuid.NewString(),
		chatID:    chatID,
		messageID: messageID,
		state:     RunStateIdle,
		open:      open,
		done:      make(chan struct{}),
	}
}

func (r *Run) RunID() string {
	return r.runID
}

func (r *Run) ChatID() string {
	return r.chatID
}

func (r *Run) MessageID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messageID
}

// setMessageID records the backend-assigned assistant message id once the
// AssistantMessageId event arrives.
func (r *Run) setMessageID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageID = id
}

func (r *Run) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) setState(state RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Cancel aborts the run's stream. The controller observes the context
// cancellation and winds the run down as cancelled.
func (r *Run) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the controller has finished the run, released the
// store slot and published the terminal update.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) finish() {
	close(r.done)
}

func (r *Run) bindCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
}
