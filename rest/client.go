package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/glowbook/chat-bridge/models"
)

// Client calls the platform's booking/chat REST API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a REST client scoped by the given bearer token
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type conversationsResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// ListConversations fetches all conversation summaries for the role and
// salon scope
func (c *Client) ListConversations(ctx context.Context, role models.Role, salonID string) ([]models.Conversation, error) {
	q := url.Values{}
	q.Set("role", string(role))
	q.Set("salon_id", salonID)

	var out conversationsResponse
	if err := c.get(ctx, "/chat/conversations?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	return out.Conversations, nil
}

// ListMessages fetches the full message history for a conversation
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out messagesResponse
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return out.Messages, nil
}

// MarkRead tells the server the viewer has read a conversation
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/read"
	if err := c.post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	return nil
}

// ChatToken requests a channel auth token from the token endpoint
func (c *Client) ChatToken(ctx context.Context) (string, error) {
	var out tokenResponse
	if err := c.get(ctx, "/chat/token", &out); err != nil {
		return "", fmt.Errorf("chat token: %w", err)
	}

	return out.Token, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
