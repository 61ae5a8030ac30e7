package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courier/internal/dispatch"
	"courier/internal/services"
	"courier/internal/services/httpx"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxMessageLength = 2000
	maxResponseBytes        = 4 << 20
)

// Config captures the gateway connection settings.
type Config struct {
	BaseURL          string
	Token            string
	MaxMessageLength int
	TimeoutSeconds   int
}

// Client talks to the chat gateway.
type Client struct {
	baseURL    *url.URL
	token      string
	maxLength  int
	httpClient *http.Client
	retry      httpx.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the retry schedule.
func WithRetryPolicy(policy httpx.Policy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "init", "base_url required", nil)
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "init", fmt.Sprintf("invalid base_url %q", raw), err)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxLength := cfg.MaxMessageLength
	if maxLength <= 0 {
		maxLength = defaultMaxMessageLength
	}
	client := &Client{
		baseURL:    base,
		token:      strings.TrimSpace(cfg.Token),
		maxLength:  maxLength,
		httpClient: &http.Client{Timeout: timeout},
		retry:      httpx.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// MaxMessageLength reports the longest message the gateway accepts.
func (c *Client) MaxMessageLength() int {
	return c.maxLength
}

// Fetch loads a single message.
func (c *Client) Fetch(ctx context.Context, channelID, messageID string) (dispatch.Message, error) {
	var msg dispatch.Message
	err := c.do(ctx, "fetch", http.MethodGet, []string{"channels", channelID, "messages", messageID}, nil, nil, &msg)
	return msg, err
}

type postMessageRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type postMessageResponse struct {
	ID string `json:"id"`
}

// Send posts a new message to the channel.
func (c *Client) Send(ctx context.Context, channelID, content string) (string, error) {
	return c.post(ctx, "send", channelID, postMessageRequest{Content: content})
}

// Reply posts content as a reply to messageID.
func (c *Client) Reply(ctx context.Context, channelID, messageID, content string) (string, error) {
	return c.post(ctx, "reply", channelID, postMessageRequest{Content: content, ReplyTo: messageID})
}

func (c *Client) post(ctx context.Context, op, channelID string, body postMessageRequest) (string, error) {
	if len([]rune(body.Content)) > c.maxLength {
		return "", services.Wrap(services.ErrValidation, "gateway", op,
			fmt.Sprintf("content exceeds %d characters", c.maxLength), nil)
	}
	var resp postMessageResponse
	if err := c.do(ctx, op, http.MethodPost, []string{"channels", channelID, "messages"}, nil, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type historyResponse struct {
	Turns []dispatch.Turn `json:"turns"`
}

// History returns up to limit recent turns for the channel.
func (c *Client) History(ctx context.Context, channelID string, limit int) ([]dispatch.Turn, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp historyResponse
	if err := c.do(ctx, "history", http.MethodGet, []string{"channels", channelID, "history"}, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Turns, nil
}

// Invoke runs a skill intent.
func (c *Client) Invoke(ctx context.Context, req dispatch.SkillRequest) (dispatch.SkillResponse, error) {
	var resp dispatch.SkillResponse
	err := c.do(ctx, "invoke", http.MethodPost, []string{"skills", "invoke"}, nil, req, &resp)
	return resp, err
}

// Execute runs a scheduled action.
func (c *Client) Execute(ctx context.Context, req dispatch.ActionRequest) (dispatch.ActionResponse, error) {
	var resp dispatch.ActionResponse
	err := c.do(ctx, "execute", http.MethodPost, []string{"actions", "execute"}, nil, req, &resp)
	return resp, err
}

func (c *Client) endpoint(segments []string, query url.Values) (string, error) {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return "", errors.New("empty path segment")
		}
		escaped[i] = url.PathEscape(segment)
	}
	u := c.baseURL.JoinPath(escaped...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, op, method string, segments []string, query url.Values, body, out any) error {
	endpoint, err := c.endpoint(segments, query)
	if err != nil {
		return services.Wrap(services.ErrValidation, "gateway", op, "build url", err)
	}
	var encoded []byte
	if body != nil {
		if encoded, err = json.Marshal(body); err != nil {
			return services.Wrap(services.ErrValidation, "gateway", op, "encode body", err)
		}
	}
	err = c.retry.Do(ctx, "gateway "+op, func(ctx context.Context) error {
		return c.once(ctx, op, method, endpoint, encoded, out)
	})
	if err == nil {
		return nil
	}
	var statusErr *httpx.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "gateway", op, endpoint, err)
	case errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError &&
		statusErr.StatusCode != http.StatusTooManyRequests && statusErr.StatusCode != http.StatusRequestTimeout:
		return services.Wrap(services.ErrValidation, "gateway", op, "request rejected", err)
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "gateway", op, "request timed out", err)
	default:
		return services.Wrap(services.ErrExternalService, "gateway", op, "request failed", err)
	}
}

func (c *Client) once(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("gateway %s: new request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("gateway %s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return httpx.NewStatusError("gateway "+op, resp, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gateway %s: decode response (%s): %w", op, httpx.Snippet(string(data)), err)
	}
	return nil
}
