// Package notify publishes account events to an external event API.
//
// Client speaks the Inngest-compatible event ingestion protocol:
// POST {baseURL}/e/{key} with a JSON array of events. LogSink is used when
// no event API is configured and only writes the event to the log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EventUserSignup is the name of the event published after signup.
const EventUserSignup = "user/signup"

const defaultTimeout = 10 * time.Second

// Event is one event in the wire format of the event API. TS is in
// milliseconds since the Unix epoch.
type Event struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
	TS   int64          `json:"ts"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// StatusError is returned when the event API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event api returned %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying cannot succeed. Client errors other
// than 429 are permanent.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// Client posts events to the event API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a client for baseURL using key. A nil httpClient gets a
// client with a 10 second timeout.
func NewClient(baseURL, key string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/e/" + key,
		httpClient: httpClient,
	}
}

func (c *Client) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal([]Event{event})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// LogSink records events in the structured log instead of delivering them.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Publish(_ context.Context, event Event) error {
	s.Logger.Info().
		Str("component", "notify").
		Str("event_id", event.ID).
		Str("event_name", event.Name).
		Int64("ts", event.TS).
		Msg("event recorded (no event api configured)")
	return nil
}

// New returns a Client when baseURL is set and a LogSink otherwise.
func New(baseURL, key string, logger zerolog.Logger) Publisher {
	if strings.TrimSpace(baseURL) == "" {
		return LogSink{Logger: logger}
	}
	return NewClient(baseURL, key, nil)
}
