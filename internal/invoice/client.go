// Package invoice asks the invoice renderer for a public image of an order's invoice.
package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type renderResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// InvoiceURL renders the invoice of orderID and returns its public URL.
func (c *Client) InvoiceURL(ctx context.Context, orderID int64) (string, error) {
	endpoint := fmt.Sprintf("%s/invoices/%d", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("rendering invoice %d: %w", orderID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading invoice response: %w", err)
	}

	var parsed renderResponse
	if err := json.Unmarshal(body, &parsed); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("decoding invoice response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return "", fmt.Errorf("invoice renderer: status %d: %s", resp.StatusCode, parsed.Error)
		}
		return "", fmt.Errorf("invoice renderer: status %d", resp.StatusCode)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("invoice renderer returned no url for order %d", orderID)
	}
	return parsed.URL, nil
}
