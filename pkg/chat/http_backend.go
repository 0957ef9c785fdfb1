package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/burattino/pkg/conversation"
)

// HTTPBackend implements Backend against the backend's JSON-over-HTTP API.
// Streaming endpoints answer with text/event-stream bodies that are handed
// to the caller unread.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

type HTTPBackendOption func(*HTTPBackend)

func WithHTTPClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		b.client = client
	}
}

func NewHTTPBackend(baseURL string, options ...HTTPBackendOption) *HTTPBackend {
	ret := &HTTPBackend{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

var _ Backend = (*HTTPBackend)(nil)

func (b *HTTPBackend) stream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	log.Debug().Str("path", path).Msg("opening generation stream")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var m map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&m)
		_ = resp.Body.Close()
		log.Debug().Int("status", resp.StatusCode).Interface("error_body", m).Str("path", path).Msg("stream request rejected")
		return nil, errors.Errorf("backend error: status=%d body=%v", resp.StatusCode, m)
	}
	return resp.Body, nil
}

func (b *HTTPBackend) call(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "could not encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var m map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&m)
		return errors.Errorf("backend error: status=%d body=%v", resp.StatusCode, m)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "could not decode %s response", path)
	}
	return nil
}

func (b *HTTPBackend) StartGeneration(ctx context.Context, messages []*conversation.Message, modelID string, chatID string) (io.ReadCloser, error) {
	return b.stream(ctx, "/api/chat/stream", map[string]any{
		"messages": messages,
		"modelId":  modelID,
		"chatId":   chatID,
	})
}

func (b *HTTPBackend) ContinueGeneration(ctx context.Context, messageID string, chatID string) (io.ReadCloser, error) {
	return b.stream(ctx, "/api/chat/continue", map[string]any{
		"messageId": messageID,
		"chatId":    chatID,
	})
}

func (b *HTTPBackend) RetryGeneration(ctx context.Context, messageID string, chatID string, modelID string) (io.ReadCloser, error) {
	return b.stream(ctx, "/api/chat/retry", map[string]any{
		"messageId": messageID,
		"chatId":    chatID,
		"modelId":   modelID,
	})
}

func (b *HTTPBackend) EditAndRegenerate(ctx context.Context, messageID string, newContent string, chatID string) (io.ReadCloser, error) {
	return b.stream(ctx, "/api/chat/edit", map[string]any{
		"messageId":  messageID,
		"newContent": newContent,
		"chatId":     chatID,
	})
}

func (b *HTTPBackend) CancelGeneration(ctx context.Context, messageID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	err := b.call(ctx, http.MethodPost, "/api/chat/cancel", map[string]any{"messageId": messageID}, &out)
	if err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

func (b *HTTPBackend) GetConversation(ctx context.Context, chatID string) ([]*conversation.Message, error) {
	var out struct {
		ID       string                  `json:"id"`
		Messages []*conversation.Message `json:"messages"`
	}
	err := b.call(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (b *HTTPBackend) GetSiblings(ctx context.Context, messageID string) ([]conversation.Sibling, error) {
	var out struct {
		Siblings []conversation.Sibling `json:"siblings"`
	}
	err := b.call(ctx, http.MethodGet, fmt.Sprintf("/api/messages/%s/siblings", url.PathEscape(messageID)), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Siblings, nil
}

func (b *HTTPBackend) SwitchSibling(ctx context.Context, messageID string, siblingID string, chatID string) error {
	return b.call(ctx, http.MethodPost, "/api/messages/switch-sibling", map[string]any{
		"messageId": messageID,
		"siblingId": siblingID,
		"chatId":    chatID,
	}, nil)
}

func (b *HTTPBackend) ListChats(ctx context.Context) ([]conversation.ChatInfo, error) {
	var out struct {
		Chats []conversation.ChatInfo `json:"chats"`
	}
	err := b.call(ctx, http.MethodGet, "/api/chats", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (b *HTTPBackend) CreateChat(ctx context.Context, title string, modelID string) (conversation.ChatInfo, error) {
	var out conversation.ChatInfo
	err := b.call(ctx, http.MethodPost, "/api/chats", map[string]any{
		"title": title,
		"model": modelID,
	}, &out)
	return out, err
}

func (b *HTTPBackend) UpdateChat(ctx context.Context, chatID string, title string, modelID string) error {
	return b.call(ctx, http.MethodPatch, "/api/chats/"+url.PathEscape(chatID), map[string]any{
		"title": title,
		"model": modelID,
	}, nil)
}

func (b *HTTPBackend) DeleteChat(ctx context.Context, chatID string) error {
	return b.call(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(chatID), nil, nil)
}
