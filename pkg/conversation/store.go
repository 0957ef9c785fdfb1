package conversation

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRunActive is returned when an operation would start a second
	// concurrent run.
	ErrRunActive = errors.New("a run is already active")
	// ErrMessageNotFound is returned when a mutation targets an unknown
	// message id.
	ErrMessageNotFound = errors.New("message not found")
)

// RunHandle is the store's view of an in-flight generation. The concrete
// run lives in the chat package; the store only needs identity and the
// ability to cancel it when the conversation is switched away.
type RunHandle interface {
	RunID() string
	ChatID() string
	MessageID() string
	Cancel()
}

// Store holds the in-memory message sequence for each open conversation and
// owns the single active run handle. It is the only shared mutable state in
// the engine; all access is serialized by its mutex.
//
// Mutation discipline: the operation dispatcher inserts messages, the active
// run mutates only the message it owns while that message is incomplete, and
// the authoritative reload replaces a conversation's sequence wholesale.
type Store struct {
	mu sync.Mutex

	chats  map[string][]*Message
	active string

	run RunHandle
}

func NewStore() *Store {
	return &Store{
		chats: make(map[string][]*Message),
	}
}

// ActiveChat returns the id of the currently open conversation.
func (s *Store) ActiveChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SwitchChat makes chatID the active conversation. Any run still streaming
// for another conversation is cancelled first so no interim update leaks
// across conversations.
func (s *Store) SwitchChat(chatID string) {
	s.mu.Lock()
	run := s.run
	if run != nil && run.ChatID() == chatID {
		run = nil
	}
	s.active = chatID
	s.mu.Unlock()

	if run != nil {
		log.Debug().Str("chat_id", run.ChatID()).Str("run_id", run.RunID()).Msg("cancelling run on conversation switch")
		run.Cancel()
	}
}

// Messages returns a deep copy of the conversation's message sequence.
func (s *Store) Messages(chatID string) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[chatID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Message returns a copy of a single message.
func (s *Store) Message(chatID string, messageID string) (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.chats[chatID] {
		if m.ID == messageID {
			return m.Clone(), true
		}
	}
	return nil, false
}

// LastMessage returns a copy of the final message of the conversation.
func (s *Store) LastMessage(chatID string) (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[chatID]
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1].Clone(), true
}

// Append inserts a message at the end of the conversation. Only the
// operation dispatcher calls this.
func (s *Store) Append(chatID string, msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = append(s.chats[chatID], msg)
}

// ReplaceMessage swaps the message with the given id for a fresh one at the
// same position (the retry flow's new-sibling placeholder).
func (s *Store) ReplaceMessage(chatID string, messageID string, fresh *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[chatID]
	for i, m := range msgs {
		if m.ID == messageID {
			msgs[i] = fresh
			return nil
		}
	}
	return errors.Wrapf(ErrMessageNotFound, "%s", messageID)
}

// TruncateFrom removes the message with the given id and everything after
// it (the edit flow truncates at the edited user message before inserting
// the revision).
func (s *Store) TruncateFrom(chatID string, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[chatID]
	for i, m := range msgs {
		if m.ID == messageID {
			s.chats[chatID] = msgs[:i]
			return nil
		}
	}
	return errors.Wrapf(ErrMessageNotFound, "%s", messageID)
}

// UpdateMessage applies fn to the message with the given id under the store
// lock. The active run uses this to write interim accumulator views into
// the message it owns.
func (s *Store) UpdateMessage(chatID string, messageID string, fn func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.chats[chatID] {
		if m.ID == messageID {
			fn(m)
			return nil
		}
	}
	return errors.Wrapf(ErrMessageNotFound, "%s", messageID)
}

// RenameMessage re-keys a message to the backend-assigned id while keeping
// the same slot, so the optimistic placeholder adopts the authoritative
// identity as soon as it is known.
func (s *Store) RenameMessage(chatID string, oldID string, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.chats[chatID] {
		if m.ID == oldID {
			m.ID = newID
			return nil
		}
	}
	return errors.Wrapf(ErrMessageNotFound, "%s", oldID)
}

// Replace installs the authoritative message sequence for a conversation,
// discarding all interim state. Only the reload step calls this.
func (s *Store) Replace(chatID string, msgs []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chatID] = msgs
}

// TakeRun installs h as the single active run. It fails with ErrRunActive
// if another run has not been released yet; callers must retire the
// previous run before starting a new one.
func (s *Store) TakeRun(h RunHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return errors.Wrapf(ErrRunActive, "run %s owns message %s", s.run.RunID(), s.run.MessageID())
	}
	s.run = h
	return nil
}

// ReleaseRun clears the active run if h still owns the slot. Stale releases
// (a cancelled run racing a successor) are ignored.
func (s *Store) ReleaseRun(h RunHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil && s.run.RunID() == h.RunID() {
		s.run = nil
	}
}

// ActiveRun returns the current run handle, if any.
func (s *Store) ActiveRun() (RunHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run, s.run != nil
}
