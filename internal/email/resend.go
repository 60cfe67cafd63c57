package email

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

const (
	defaultRateLimitBackoff = time.Minute
	maxRateLimitBackoff     = time.Hour
)

// RateLimitError reports that Resend refused a send because the account's
// rate limit is exhausted. RetryAfter is how long until the window resets.
type RateLimitError struct {
	Limit      string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("email rate limit exceeded (limit: %s, resets in %s): %v", e.Limit, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// message is one outbound email. Category becomes a Resend tag so sends can
// be filtered per flow in the Resend dashboard.
type message struct {
	To       string
	Subject  string
	HTML     string
	Category string
}

// sendViaResend delivers msg. A rate-limited send returns *RateLimitError so
// the job runner can wait for the window instead of burning attempts.
func (s *Service) sendViaResend(ctx context.Context, msg message) error {
	if s.resendClient == nil {
		return fmt.Errorf("resend client not initialized")
	}

	params := &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.Category != "" {
		params.Tags = []resend.Tag{{Name: "category", Value: msg.Category}}
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, params)
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			retryAfter := resetWindow(rateLimitErr.Reset)
			s.logger.Warn().
				Str("category", msg.Category).
				Str("limit", rateLimitErr.Limit).
				Str("remaining", rateLimitErr.Remaining).
				Dur("retry_after", retryAfter).
				Msg("resend rate limit exceeded")
			return &RateLimitError{Limit: rateLimitErr.Limit, RetryAfter: retryAfter, Err: err}
		}
		return fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Info().
		Str("email_id", sent.Id).
		Str("category", msg.Category).
		Msg("email sent via Resend")
	return nil
}

// resetWindow parses Resend's reset header, given in seconds. Missing or
// malformed values fall back to a minute; the result is capped at an hour.
func resetWindow(reset string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(reset))
	if err != nil || seconds <= 0 {
		return defaultRateLimitBackoff
	}
	window := time.Duration(seconds) * time.Second
	if window > maxRateLimitBackoff {
		return maxRateLimitBackoff
	}
	return window
}
