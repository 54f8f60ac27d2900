// Package line integrates with the LINE Messaging API: webhook signature
// verification, event payload decoding, and outbound reply/push messages.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultAPIBase = "https://api.line.me"

type Client struct {
	httpClient  *http.Client
	apiBase     string
	accessToken string
}

func NewClient(accessToken, apiBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		apiBase:     apiBase,
		accessToken: accessToken,
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Push sends a message to a user. Delivery is best effort; callers log the
// returned error and move on.
func (c *Client) Push(ctx context.Context, to, text string) error {
	payload := struct {
		To       string        `json:"to"`
		Messages []textMessage `json:"messages"`
	}{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

// Reply answers a webhook event using its one-time reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	payload := struct {
		ReplyToken string        `json:"replyToken"`
		Messages   []textMessage `json:"messages"`
	}{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	if c.accessToken == "" {
		return fmt.Errorf("line: access token not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("line: %s returned %d: %s", path, resp.StatusCode, detail)
	}
	return nil
}
