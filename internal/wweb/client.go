package wweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/irizigit/whatsapbootirizi/internal/config"
)

// Client — операции моста WhatsApp Web, которые потребляет бот.
type Client interface {
	SendMessage(ctx context.Context, chatID string, text string) error
	SendDocument(ctx context.Context, chatID string, media Media, caption string) (string, error)
	SendImage(ctx context.Context, chatID string, media Media, caption string) (string, error)
	ForwardMessage(ctx context.Context, chatID string, messageID string) error
	DownloadMedia(ctx context.Context, messageID string) (Media, error)
	GetChat(ctx context.Context, chatID string) (Chat, error)
	GetGroups(ctx context.Context) ([]Chat, error)
	GetParticipants(ctx context.Context, chatID string) ([]Participant, error)
	SetGroupLocked(ctx context.Context, chatID string, locked bool) error
	React(ctx context.Context, messageID string, emoji string) error
	GetSelfID(ctx context.Context) (string, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg config.BridgeConfig, httpClient *http.Client) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.APIBaseURL,
		token:      cfg.APIToken,
		httpClient: httpClient,
	}
}

func (c *HTTPClient) SendMessage(ctx context.Context, chatID string, text string) error {
	req := struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: chatID, Text: text}
	return c.post(ctx, "/messages/send", req, nil)
}

// SendDocument отправляет документ и возвращает идентификатор созданного сообщения.
func (c *HTTPClient) SendDocument(ctx context.Context, chatID string, media Media, caption string) (string, error) {
	return c.sendMedia(ctx, "/messages/send-document", chatID, media, caption)
}

// SendImage отправляет изображение и возвращает идентификатор созданного сообщения.
func (c *HTTPClient) SendImage(ctx context.Context, chatID string, media Media, caption string) (string, error) {
	return c.sendMedia(ctx, "/messages/send-image", chatID, media, caption)
}

func (c *HTTPClient) sendMedia(ctx context.Context, path string, chatID string, media Media, caption string) (string, error) {
	req := struct {
		ChatID   string `json:"chat_id"`
		Data     []byte `json:"data"`
		MimeType string `json:"mime_type"`
		Filename string `json:"filename,omitempty"`
		Caption  string `json:"caption,omitempty"`
	}{ChatID: chatID, Data: media.Data, MimeType: media.MimeType, Filename: media.Filename, Caption: caption}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (c *HTTPClient) ForwardMessage(ctx context.Context, chatID string, messageID string) error {
	req := struct {
		ChatID    string `json:"chat_id"`
		MessageID string `json:"message_id"`
	}{ChatID: chatID, MessageID: messageID}
	return c.post(ctx, "/messages/forward", req, nil)
}

func (c *HTTPClient) DownloadMedia(ctx context.Context, messageID string) (Media, error) {
	var media Media
	if err := c.get(ctx, "/messages/"+messageID+"/media", &media); err != nil {
		return Media{}, err
	}
	return media, nil
}

func (c *HTTPClient) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	if err := c.get(ctx, "/chats/"+chatID, &chat); err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// GetGroups возвращает все группы, в которых состоит бот.
func (c *HTTPClient) GetGroups(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.get(ctx, "/chats?type=group", &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *HTTPClient) GetParticipants(ctx context.Context, chatID string) ([]Participant, error) {
	var participants []Participant
	if err := c.get(ctx, "/chats/"+chatID+"/participants", &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// SetGroupLocked переключает режим "только администраторы" у группы.
func (c *HTTPClient) SetGroupLocked(ctx context.Context, chatID string, locked bool) error {
	req := struct {
		ChatID string `json:"chat_id"`
		Locked bool   `json:"locked"`
	}{ChatID: chatID, Locked: locked}
	return c.post(ctx, "/groups/set-locked", req, nil)
}

func (c *HTTPClient) React(ctx context.Context, messageID string, emoji string) error {
	req := struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	}{MessageID: messageID, Emoji: emoji}
	return c.post(ctx, "/messages/react", req, nil)
}

func (c *HTTPClient) GetSelfID(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, "/self", &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal bridge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	c.authorize(req)

	return c.do(req, out)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute bridge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge api status %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bridge response: %w", err)
	}
	return nil
}
