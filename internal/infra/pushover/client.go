// Package pushover sends device alerts to a phone.
package pushover

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"promixer/internal/infra"
)

const DefaultEndpoint = "https://api.pushover.net/1/messages.json"

type Client struct {
	token      string
	userKey    string
	endpoint   string
	httpClient *http.Client
	backoff    infra.Backoff
	logger     *slog.Logger
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithBackoff(b infra.Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

func NewClient(token, userKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		token:      token,
		userKey:    userKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    infra.DefaultBackoff(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify pushes message. An unconfigured client does nothing.
func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", "ProMixer")
	body := data.Encode()

	err := c.backoff.Do(ctx, func(ctx context.Context) error {
		return c.send(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("pushover notification: %w", err)
	}
	c.logger.Debug("device alert pushed", "message", message)
	return nil
}

func (c *Client) send(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return infra.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	err = fmt.Errorf("pushover error: %s", resp.Status)
	if !infra.RetryableStatus(resp.StatusCode) {
		return infra.Permanent(err)
	}
	return err
}
