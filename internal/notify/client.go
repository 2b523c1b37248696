// Package notify is the fire-and-forget client for the push sink. The core
// needs no delivery confirmation; a sink failure is logged by the caller
// and never fails the triggering operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Push asks the sink to deliver a message to one user.
func (c *Client) Push(ctx context.Context, userID, title, body string, data map[string]string) error {
	if c.baseURL == "" {
		return nil
	}

	payload := map[string]any{
		"userId": userID,
		"title":  title,
		"body":   body,
		"data":   data,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/push", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push sink returned %d", resp.StatusCode)
	}
	return nil
}
