package chat

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/burattino/pkg/conversation"
)

// scriptedStream feeds lines to the decoder one at a time and honors
// context cancellation mid-read, the way an HTTP response body does.
type scriptedStream struct {
	ctx context.Context
	ch  chan string
	buf []byte
}

func newScriptedStream(ctx context.Context) *scriptedStream {
	return &scriptedStream{ctx: ctx, ch: make(chan string)}
}

func (s *scriptedStream) send(lines ...string) {
	for _, l := range lines {
		s.ch <- l + "\n"
	}
}

func (s *scriptedStream) finish() {
	close(s.ch)
}

func (s *scriptedStream) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		select {
		case line, ok := <-s.ch:
			if !ok {
				return 0, io.EOF
			}
			s.buf = []byte(line)
		case <-s.ctx.Done():
			return 0, s.ctx.Err()
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *scriptedStream) Close() error { return nil }

// fakeBackend scripts the stream-opening calls and records everything else.
type fakeBackend struct {
	mu sync.Mutex

	// next stream handed out by any generation-starting call; openErr wins
	// if set
	openErr error
	stream  func(ctx context.Context) io.ReadCloser

	conversation []*conversation.Message
	convErr      error
	convCalls    int

	cancelCalls  []string
	startHistory [][]*conversation.Message

	siblings []conversation.Sibling
	switched [][3]string
	chats    []conversation.ChatInfo
	deleted  []string
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) open(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.stream == nil {
		return nil, errors.New("no stream scripted")
	}
	return f.stream(ctx), nil
}

func (f *fakeBackend) StartGeneration(ctx context.Context, messages []*conversation.Message, modelID string, chatID string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.startHistory = append(f.startHistory, messages)
	f.mu.Unlock()
	return f.open(ctx)
}

func (f *fakeBackend) ContinueGeneration(ctx context.Context, messageID string, chatID string) (io.ReadCloser, error) {
	return f.open(ctx)
}

func (f *fakeBackend) RetryGeneration(ctx context.Context, messageID string, chatID string, modelID string) (io.ReadCloser, error) {
	return f.open(ctx)
}

func (f *fakeBackend) EditAndRegenerate(ctx context.Context, messageID string, newContent string, chatID string) (io.ReadCloser, error) {
	return f.open(ctx)
}

func (f *fakeBackend) CancelGeneration(ctx context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, messageID)
	return true, nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, chatID string) ([]*conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCalls++
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.conversation, nil
}

func (f *fakeBackend) GetSiblings(ctx context.Context, messageID string) ([]conversation.Sibling, error) {
	return f.siblings, nil
}

func (f *fakeBackend) SwitchSibling(ctx context.Context, messageID string, siblingID string, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switched = append(f.switched, [3]string{messageID, siblingID, chatID})
	return nil
}

func (f *fakeBackend) ListChats(ctx context.Context) ([]conversation.ChatInfo, error) {
	return f.chats, nil
}

func (f *fakeBackend) CreateChat(ctx context.Context, title string, modelID string) (conversation.ChatInfo, error) {
	return conversation.ChatInfo{ID: "new-chat", Title: title, Model: modelID}, nil
}

func (f *fakeBackend) UpdateChat(ctx context.Context, chatID string, title string, modelID string) error {
	return nil
}

func (f *fakeBackend) DeleteChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, chatID)
	return nil
}

func (f *fakeBackend) getCancelCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelCalls...)
}

func (f *fakeBackend) getConvCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls
}
