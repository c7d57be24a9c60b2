package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Response is one complete model turn.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client turns a streaming Provider into the request/response calls the
// agent loop needs. Retryable transport errors are retried with backoff, but
// only while nothing has been streamed to the user yet.
type Client struct {
	provider     Provider
	model        string
	maxTokens    int
	systemPrompt string
	maxRetries   int
	logger       *slog.Logger
	onTextDelta  func(string)
	onRetry      func(attempt, max int, delay time.Duration, err error)

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

func WithModel(model string) Option { return func(c *Client) { c.model = model } }

func WithMaxTokens(n int) Option { return func(c *Client) { c.maxTokens = n } }

func WithSystemPrompt(s string) Option { return func(c *Client) { c.systemPrompt = s } }

// WithMaxRetries sets how many times a failed call is retried (0 disables).
func WithMaxRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithTextHandler streams assistant text deltas of ChatWithTools to fn.
func WithTextHandler(fn func(string)) Option { return func(c *Client) { c.onTextDelta = fn } }

// WithRetryHandler is notified before each retry sleep.
func WithRetryHandler(fn func(attempt, max int, delay time.Duration, err error)) Option {
	return func(c *Client) { c.onRetry = fn }
}

// NewClient wraps p.
func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:  p,
		maxTokens: 8192,
		logger:    slog.Default(),
		sleep:     sleepWithContext,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Model returns the model requests are sent to.
func (c *Client) Model() string {
	if c.model != "" {
		return c.model
	}
	return c.provider.DefaultModel()
}

// SetSystemPrompt replaces the system prompt of subsequent calls.
func (c *Client) SetSystemPrompt(s string) { c.systemPrompt = s }

// SetTextHandler replaces the text delta callback.
func (c *Client) SetTextHandler(fn func(string)) { c.onTextDelta = fn }

// ChatWithTools sends the transcript and tool schemas and returns the
// assembled assistant turn.
func (c *Client) ChatWithTools(ctx context.Context, msgs []Message, schemas []ToolSchema) (*Response, error) {
	req := &ChatRequest{
		Model:        c.model,
		Messages:     msgs,
		Tools:        schemas,
		SystemPrompt: c.systemPrompt,
		MaxTokens:    c.maxTokens,
	}
	return c.call(ctx, req, c.onTextDelta)
}

func (c *Client) call(ctx context.Context, req *ChatRequest, onText func(string)) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, streamed, err := c.once(ctx, req, onText)
		if err == nil {
			return resp, nil
		}
		if streamed || attempt >= c.maxRetries || !isRetryableError(err) {
			return nil, err
		}

		delay := retryDelay(attempt)
		c.logger.Warn("model call failed, retrying",
			"provider", c.provider.Name(), "attempt", attempt+1, "max", c.maxRetries,
			"delay", delay.Round(time.Millisecond), "error", err)
		if c.onRetry != nil {
			c.onRetry(attempt+1, c.maxRetries, delay, err)
		}
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, errors.Join(err, serr)
		}
	}
}

// once performs a single streaming call. streamed reports whether any text
// reached onText, after which a retry would duplicate output.
func (c *Client) once(ctx context.Context, req *ChatRequest, onText func(string)) (resp *Response, streamed bool, err error) {
	events, err := c.provider.Chat(ctx, req)
	if err != nil {
		return nil, false, err
	}

	resp = &Response{}
	var text strings.Builder
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.TextDelta)
			if onText != nil && ev.TextDelta != "" {
				onText(ev.TextDelta)
				streamed = true
			}
		case EventToolCallDone:
			if ev.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *ev.ToolCall)
			}
		case EventDone:
			if ev.Usage != nil {
				resp.Usage = *ev.Usage
			}
		case EventError:
			if err == nil {
				err = ev.Error
			}
		}
	}
	if err != nil {
		return nil, streamed, fmt.Errorf("%s: %w", c.provider.Name(), err)
	}
	resp.Content = text.String()
	return resp, streamed, nil
}
