// Package whatsapp is a thin client for the upstream WhatsApp gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrEmptyCredential = errors.New("whatsapp credential is empty")

// APIError is returned for non-2xx gateway responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp gateway error: status=%d body=%s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ID is an upstream message id; the gateway emits it either as a number or as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// InboundMessage is one entry of the gateway's received messages listing.
type InboundMessage struct {
	ID       ID     `json:"id"`
	Type     string `json:"type"`
	From     string `json:"from"`
	To       string `json:"to"`
	Date     string `json:"date"`
	Message  string `json:"message,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// IsMedia reports whether the entry carries media instead of text.
func (m InboundMessage) IsMedia() bool {
	switch strings.ToLower(m.Type) {
	case "", "text", "chat":
		return false
	default:
		return m.MediaURL != ""
	}
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) endpoint(path, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrEmptyCredential
	}
	return fmt.Sprintf("%s/%s/%s", c.BaseURL, path, url.PathEscape(credential)), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// FetchReceived returns the first page of messages received by the credential's account.
func (c *Client) FetchReceived(ctx context.Context, credential string) ([]InboundMessage, error) {
	endpoint, err := c.endpoint("receivedMessages", credential)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?page=1", nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []InboundMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding received messages: %w", err)
	}
	return parsed.Data, nil
}

func (c *Client) SendText(ctx context.Context, credential, to, text string) error {
	endpoint, err := c.endpoint("sendMsg", credential)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("phonenumber", to)
	q.Set("message", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	_, err = c.do(req)
	return err
}

// SendImage sends imageURL with caption as a single message.
func (c *Client) SendImage(ctx context.Context, credential, to, caption, imageURL string) error {
	endpoint, err := c.endpoint("sendMsg", credential)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("phonenumber", to)
	form.Set("message", caption)
	form.Set("link", imageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = c.do(req)
	return err
}

// MaskCredential hides all but the last four characters for logging.
func MaskCredential(credential string) string {
	if len(credential) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(credential)-4) + credential[len(credential)-4:]
}
