// Package newsletter talks to the hosted email-list provider over its JSON API.
package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// ErrProviderFailure signals a non-2xx answer or transport failure from the list provider.
var ErrProviderFailure = errors.New("newsletter: provider failure")

// Subscription is the payload forwarded to the list provider.
type Subscription struct {
	Email  string `json:"email"`
	Locale string `json:"locale,omitempty"`
	ListID string `json:"list_id,omitempty"`
}

// Client submits subscriptions to the hosted provider with a bearer credential.
type Client struct {
	endpoint   string
	authToken  string
	listID     string
	httpClient *http.Client
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithListID pins subscriptions to a specific provider list.
func WithListID(listID string) Option {
	return func(c *Client) {
		c.listID = strings.TrimSpace(listID)
	}
}

// NewClient builds a provider client for the given endpoint and credential.
func NewClient(endpoint, authToken string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("newsletter: endpoint is required")
	}
	client := &Client{
		endpoint:   endpoint,
		authToken:  strings.TrimSpace(authToken),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Subscribe forwards the subscription; the provider treats repeats as idempotent.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	if c == nil {
		return errors.New("newsletter: client is nil")
	}
	if sub.ListID == "" {
		sub.ListID = c.listID
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("newsletter: encode subscription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("newsletter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: unexpected status %d", ErrProviderFailure, resp.StatusCode)
	}
	return nil
}
