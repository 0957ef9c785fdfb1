package chat

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/burattino/pkg/blocks"
	"github.com/go-go-golems/burattino/pkg/conversation"
	"github.com/go-go-golems/burattino/pkg/events"
	"github.com/go-go-golems/burattino/pkg/helpers"
)

const cancelTimeout = 5 * time.Second

// Controller drives a single generation run: it opens the backend stream,
// folds the decoded events into the block accumulator, mirrors coalesced
// snapshots into the store and onto the update topic, and settles the run
// into a terminal state.
type Controller struct {
	backend   Backend
	store     *conversation.Store
	publisher *events.PublisherManager

	// updateInterval throttles snapshot publishing. Zero means publish
	// synchronously after every event, which tests rely on.
	updateInterval time.Duration
}

type ControllerOption func(*Controller)

func WithUpdateInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.updateInterval = d
	}
}

func NewController(backend Backend, store *conversation.Store, publisher *events.PublisherManager, options ...ControllerOption) *Controller {
	ret := &Controller{
		backend:   backend,
		store:     store,
		publisher: publisher,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Execute runs a generation to its terminal state. It blocks until the run
// is finished, so callers spawn it on a goroutine; the run slot in the store
// is released and run.Done() closed on every exit path.
func (c *Controller) Execute(ctx context.Context, run *Run) {
	ctx, cancel := context.WithCancel(ctx)
	run.bindCancel(cancel)
	defer cancel()
	defer run.finish()
	defer c.store.ReleaseRun(run)

	ctx = helpers.ContextWithCorrelationID(ctx, run.RunID())

	log.Debug().Str("run_id", run.RunID()).Str("chat_id", run.ChatID()).Msg("starting run")
	run.setState(RunStateStarting)

	stream, err := run.open(ctx)
	if err != nil {
		c.failStart(ctx, run, err)
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	run.setState(RunStateStreaming)

	var mu sync.Mutex
	state := blocks.State{}

	snapshot := func() []blocks.ContentBlock {
		mu.Lock()
		defer mu.Unlock()
		return state.View()
	}

	coalescer := events.NewCoalescer(func() {
		c.publishSnapshot(ctx, run, RunStateStreaming, snapshot(), "")
	})
	if c.updateInterval > 0 {
		coalescer.Start(c.updateInterval)
	}

	decoder := events.NewDecoder(stream)
	terminal := RunStateCompleted
	errText := ""
	remoteCancel := false

	for {
		ev, err := decoder.Next()
		if err == io.EOF {
			// stream closed without a terminal event; the backend finished
			// writing, treat it as completion
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				terminal = RunStateCancelled
			} else {
				log.Warn().Err(err).Str("run_id", run.RunID()).Msg("event stream broke")
				terminal = RunStateErrored
				errText = err.Error()
				mu.Lock()
				state = streamFailure(state, err)
				mu.Unlock()
				run.setErr(err)
			}
			break
		}

		// the decoder may keep yielding events from bytes buffered before
		// the cancel fired; none of them may mutate the store or publish
		if ctx.Err() != nil {
			terminal = RunStateCancelled
			break
		}

		if e, ok := ev.(*events.EventAssistantMessageID); ok {
			c.adoptMessageID(run, e.Content)
		}

		mu.Lock()
		state = blocks.Reduce(state, ev)
		mu.Unlock()
		coalescer.Schedule()
		if c.updateInterval <= 0 {
			coalescer.Tick()
		}

		stop := true
		switch e := ev.(type) {
		case *events.EventRunCompleted:
			terminal = RunStateCompleted
		case *events.EventRunError:
			terminal = RunStateErrored
			errText = e.ErrorText()
		case *events.EventRunCancelled:
			terminal = RunStateCancelled
			remoteCancel = true
		default:
			stop = false
		}
		if stop {
			break
		}
	}

	if ctx.Err() != nil {
		terminal = RunStateCancelled
		remoteCancel = false
	}

	coalescer.Stop()
	c.settle(ctx, run, terminal, snapshot(), errText, remoteCancel)
}

// failStart handles an error opening the stream: the placeholder message
// gets an error block appended and the run settles as errored without a
// backend reload, since nothing was persisted server-side.
func (c *Controller) failStart(ctx context.Context, run *Run, err error) {
	log.Warn().Err(err).Str("run_id", run.RunID()).Msg("could not open generation stream")
	run.setErr(err)
	run.setState(RunStateErrored)

	view := []blocks.ContentBlock{blocks.NewErrorBlock(err.Error())}
	if uerr := c.store.UpdateMessage(run.ChatID(), run.MessageID(), func(m *conversation.Message) {
		m.Blocks = append(m.Blocks, view[0])
	}); uerr != nil {
		log.Warn().Err(uerr).Str("message_id", run.MessageID()).Msg("could not record start failure")
	}
	c.publishUpdate(ctx, run, RunStateErrored, view, err.Error())
}

// adoptMessageID switches the optimistic placeholder id to the
// backend-assigned one as soon as the AssistantMessageId event arrives.
func (c *Controller) adoptMessageID(run *Run, newID string) {
	oldID := run.MessageID()
	if oldID == newID || newID == "" {
		return
	}
	if err := c.store.RenameMessage(run.ChatID(), oldID, newID); err != nil {
		log.Warn().Err(err).Str("old_id", oldID).Str("new_id", newID).Msg("could not adopt assistant message id")
		return
	}
	run.setMessageID(newID)
	log.Debug().Str("old_id", oldID).Str("new_id", newID).Msg("adopted assistant message id")
}

// settle writes the final interim view into the store, reconciles with the
// backend where the run ended authoritatively, and publishes the terminal
// update.
func (c *Controller) settle(ctx context.Context, run *Run, terminal RunState, view []blocks.ContentBlock, errText string, remoteCancel bool) {
	run.setState(terminal)
	// the run context may already be cancelled; terminal work still proceeds
	ctx = context.WithoutCancel(ctx)

	if err := c.store.UpdateMessage(run.ChatID(), run.MessageID(), func(m *conversation.Message) {
		m.Blocks = blocks.CloneBlocks(view)
		m.Content = blocks.PlainText(view)
		if terminal == RunStateCompleted {
			m.IsComplete = true
		}
	}); err != nil {
		log.Warn().Err(err).Str("message_id", run.MessageID()).Msg("could not write final run state")
	}

	switch terminal {
	case RunStateCompleted, RunStateErrored:
		// the backend persisted its own view of the message; reload the
		// conversation wholesale so local state matches it
		c.reload(ctx, run)

	case RunStateCancelled:
		// the interim message stays as-is, incomplete, so the user can
		// continue it later. A backend-announced cancel needs no abort
		// request; it already happened server-side.
		if remoteCancel {
			break
		}
		cctx, ccancel := context.WithTimeout(ctx, cancelTimeout)
		defer ccancel()
		if ok, err := c.backend.CancelGeneration(cctx, run.MessageID()); err != nil {
			log.Warn().Err(err).Str("message_id", run.MessageID()).Msg("cancel request failed")
		} else if !ok {
			log.Debug().Str("message_id", run.MessageID()).Msg("backend had no generation to cancel")
		}
	}

	c.publishUpdate(ctx, run, terminal, view, errText)
	log.Debug().Str("run_id", run.RunID()).Str("state", string(terminal)).Msg("run settled")
}

func (c *Controller) reload(ctx context.Context, run *Run) {
	msgs, err := c.backend.GetConversation(ctx, run.ChatID())
	if err != nil {
		// the interim reconstruction is retained; worst case is a transient
		// divergence until the next reload
		log.Warn().Err(err).Str("chat_id", run.ChatID()).Msg("conversation reload failed, keeping interim state")
		return
	}
	c.store.Replace(run.ChatID(), msgs)
}

// publishSnapshot mirrors an in-flight view into the store and onto the
// update topic. It runs on the coalescer's tick.
func (c *Controller) publishSnapshot(ctx context.Context, run *Run, state RunState, view []blocks.ContentBlock, errText string) {
	if err := c.store.UpdateMessage(run.ChatID(), run.MessageID(), func(m *conversation.Message) {
		m.Blocks = blocks.CloneBlocks(view)
		m.Content = blocks.PlainText(view)
	}); err != nil {
		log.Warn().Err(err).Str("message_id", run.MessageID()).Msg("could not apply run snapshot")
	}
	c.publishUpdate(ctx, run, state, view, errText)
}

func (c *Controller) publishUpdate(ctx context.Context, run *Run, state RunState, view []blocks.ContentBlock, errText string) {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishBlindContext(ctx, RunUpdate{
		RunID:     run.RunID(),
		ChatID:    run.ChatID(),
		MessageID: run.MessageID(),
		State:     state,
		Blocks:    view,
		Error:     errText,
	})
}

// streamFailure folds a transport-level failure into the block state the
// same way a RunError event would, so the rendered message shows what broke.
func streamFailure(s blocks.State, err error) blocks.State {
	ev := events.NewRunErrorEvent(err.Error())
	return blocks.Reduce(s, ev)
}
