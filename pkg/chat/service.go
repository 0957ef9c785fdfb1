package chat

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/burattino/pkg/conversation"
)

var (
	ErrLastMessageIncomplete = errors.New("last message is still incomplete")
	ErrNotContinuable        = errors.New("message is not an incomplete assistant message")
	ErrNotRetryable          = errors.New("message is not an assistant message")
	ErrNotEditable           = errors.New("message is not a user message")
	ErrNoActiveRun           = errors.New("no active run")
)

// Service is the operation dispatcher. Each generation-starting operation
// validates its preconditions, claims the store's single run slot, applies
// the optimistic local mutation and hands the run to the controller on its
// own goroutine.
type Service struct {
	backend    Backend
	store      *conversation.Store
	controller *Controller
	navigator  *conversation.Navigator
}

func NewService(backend Backend, store *conversation.Store, controller *Controller) *Service {
	return &Service{
		backend:    backend,
		store:      store,
		controller: controller,
		navigator:  conversation.NewNavigator(backend, store),
	}
}

func (s *Service) Store() *conversation.Store {
	return s.store
}

func (s *Service) Navigator() *conversation.Navigator {
	return s.navigator
}

// Send appends a user message and an assistant placeholder, then starts a
// generation over the conversation history. Rejected while another run is
// active or while the chat's tail message is still incomplete.
func (s *Service) Send(chatID string, text string, modelID string) (*Run, error) {
	if last, ok := s.store.LastMessage(chatID); ok && !last.IsComplete {
		return nil, errors.Wrapf(ErrLastMessageIncomplete, "message %s", last.ID)
	}

	userMsg := conversation.NewUserMessage(text)
	placeholder := conversation.NewAssistantPlaceholder(modelID)
	placeholder.ParentID = userMsg.ID

	run := NewRun(chatID, placeholder.ID, func(ctx context.Context) (io.ReadCloser, error) {
		history := s.store.Messages(chatID)
		// the placeholder is local bookkeeping, not part of the prompt
		history = withoutMessage(history, placeholder.ID)
		return s.backend.StartGeneration(ctx, history, modelID, chatID)
	})
	if err := s.store.TakeRun(run); err != nil {
		return nil, err
	}

	s.store.Append(chatID, userMsg)
	s.store.Append(chatID, placeholder)

	s.spawn(run)
	return run, nil
}

// Continue resumes generation on an incomplete assistant message. The
// stream re-seeds the accumulator with the message's existing blocks before
// new content arrives.
func (s *Service) Continue(chatID string, messageID string) (*Run, error) {
	msg, ok := s.store.Message(chatID, messageID)
	if !ok {
		return nil, errors.Wrapf(conversation.ErrMessageNotFound, "message %s", messageID)
	}
	if msg.Role != conversation.RoleAssistant || msg.IsComplete {
		return nil, errors.Wrapf(ErrNotContinuable, "message %s", messageID)
	}

	run := NewRun(chatID, messageID, func(ctx context.Context) (io.ReadCloser, error) {
		return s.backend.ContinueGeneration(ctx, messageID, chatID)
	})
	if err := s.store.TakeRun(run); err != nil {
		return nil, err
	}

	s.spawn(run)
	return run, nil
}

// Retry regenerates an assistant message as a new sibling. Locally the old
// message is swapped for a fresh placeholder; the backend creates the real
// sibling and announces its id on the stream.
func (s *Service) Retry(chatID string, messageID string, modelID string) (*Run, error) {
	msg, ok := s.store.Message(chatID, messageID)
	if !ok {
		return nil, errors.Wrapf(conversation.ErrMessageNotFound, "message %s", messageID)
	}
	if msg.Role != conversation.RoleAssistant {
		return nil, errors.Wrapf(ErrNotRetryable, "message %s", messageID)
	}

	placeholder := conversation.NewAssistantPlaceholder(modelID)
	placeholder.ParentID = msg.ParentID

	run := NewRun(chatID, placeholder.ID, func(ctx context.Context) (io.ReadCloser, error) {
		return s.backend.RetryGeneration(ctx, messageID, chatID, modelID)
	})
	if err := s.store.TakeRun(run); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceMessage(chatID, messageID, placeholder); err != nil {
		s.store.ReleaseRun(run)
		return nil, err
	}

	s.spawn(run)
	return run, nil
}

// Edit replaces a user message with new content and regenerates everything
// after it. Locally the old message and its descendants are truncated; the
// backend branches the edited message as a sibling server-side.
func (s *Service) Edit(chatID string, messageID string, newContent string, modelID string) (*Run, error) {
	msg, ok := s.store.Message(chatID, messageID)
	if !ok {
		return nil, errors.Wrapf(conversation.ErrMessageNotFound, "message %s", messageID)
	}
	if msg.Role != conversation.RoleUser {
		return nil, errors.Wrapf(ErrNotEditable, "message %s", messageID)
	}
	// an incomplete tail message is resumable; editing would truncate it
	if last, ok := s.store.LastMessage(chatID); ok && !last.IsComplete {
		return nil, errors.Wrapf(ErrLastMessageIncomplete, "message %s", last.ID)
	}

	edited := conversation.NewUserMessage(newContent)
	edited.ParentID = msg.ParentID
	placeholder := conversation.NewAssistantPlaceholder(modelID)
	placeholder.ParentID = edited.ID

	run := NewRun(chatID, placeholder.ID, func(ctx context.Context) (io.ReadCloser, error) {
		return s.backend.EditAndRegenerate(ctx, messageID, newContent, chatID)
	})
	if err := s.store.TakeRun(run); err != nil {
		return nil, err
	}

	if err := s.store.TruncateFrom(chatID, messageID); err != nil {
		s.store.ReleaseRun(run)
		return nil, err
	}
	s.store.Append(chatID, edited)
	s.store.Append(chatID, placeholder)

	s.spawn(run)
	return run, nil
}

// Cancel aborts the active run, if any.
func (s *Service) Cancel() error {
	run, ok := s.store.ActiveRun()
	if !ok {
		return ErrNoActiveRun
	}
	log.Debug().Str("run_id", run.RunID()).Msg("cancelling active run")
	run.Cancel()
	return nil
}

// OpenChat makes a chat active and loads its conversation from the backend.
// Any run belonging to a different chat is cancelled by the switch.
func (s *Service) OpenChat(ctx context.Context, chatID string) error {
	s.store.SwitchChat(chatID)
	msgs, err := s.backend.GetConversation(ctx, chatID)
	if err != nil {
		return errors.Wrapf(err, "could not load conversation %s", chatID)
	}
	s.store.Replace(chatID, msgs)
	return nil
}

func (s *Service) ListChats(ctx context.Context) ([]conversation.ChatInfo, error) {
	return s.backend.ListChats(ctx)
}

func (s *Service) CreateChat(ctx context.Context, title string, modelID string) (conversation.ChatInfo, error) {
	return s.backend.CreateChat(ctx, title, modelID)
}

func (s *Service) UpdateChat(ctx context.Context, chatID string, title string, modelID string) error {
	return s.backend.UpdateChat(ctx, chatID, title, modelID)
}

// DeleteChat removes a chat on the backend and drops it locally. Deleting
// the chat that owns the active run cancels the run first.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	if run, ok := s.store.ActiveRun(); ok && run.ChatID() == chatID {
		run.Cancel()
	}
	if err := s.backend.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	s.store.Replace(chatID, nil)
	return nil
}

func (s *Service) spawn(run *Run) {
	// the run outlives the operation that started it
	go s.controller.Execute(context.Background(), run)
}

func withoutMessage(msgs []*conversation.Message, id string) []*conversation.Message {
	out := make([]*conversation.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == id {
			continue
		}
		out = append(out, m)
	}
	return out
}
