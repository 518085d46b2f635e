// Package whatsapp talks to the WhatsApp Cloud API: outbound text messages,
// read receipts and the webhook payload shapes.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spec-kit/intake-desk/internal/config"
)

// ErrNoMessageID is returned when the API accepted a send without echoing an id.
var ErrNoMessageID = errors.New("whatsapp: response carried no message id")

// Client sends messages through the Cloud API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	phoneID    string
	token      string
}

// NewClient builds a client from configuration.
func NewClient(cfg config.WhatsAppConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.SendTimeout()},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		version:    cfg.APIVersion,
		phoneID:    cfg.PhoneNumberID,
		token:      cfg.Token,
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers a text message to identity and returns the channel message id.
func (c *Client) Send(ctx context.Context, identity, text string) (string, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                identity,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	var resp sendResponse
	if err := c.post(ctx, body, &resp); err != nil {
		return "", fmt.Errorf("send to %s: %w", identity, err)
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", ErrNoMessageID
	}
	return resp.Messages[0].ID, nil
}

// MarkRead flags an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	if err := c.post(ctx, body, nil); err != nil {
		return fmt.Errorf("mark read %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneID)
}

func (c *Client) post(ctx context.Context, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), strings.NewReader(string(encoded)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("http %d: %s (code %d)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
