package email

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tixdesk/server/internal/config"
)

func newMockResendService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	mockServer := httptest.NewServer(handler)
	t.Cleanup(mockServer.Close)

	svc, err := NewService(config.EmailConfig{
		Enabled:      true,
		From:         "hello@tixdesk.test",
		ResendAPIKey: "test-api-key",
	}, zerolog.Nop())
	require.NoError(t, err)

	baseURL, err := url.Parse(mockServer.URL + "/")
	require.NoError(t, err)
	svc.resendClient.BaseURL = baseURL
	return svc
}

func TestSendWelcome_Resend(t *testing.T) {
	var got resend.SendEmailRequest
	svc := newMockResendService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Errorf("expected POST /emails, got %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-api-key" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "mock-email-id"})
	})

	require.NoError(t, svc.SendWelcome(context.Background(), "new@x.com"))

	assert.Equal(t, "hello@tixdesk.test", got.From)
	assert.Equal(t, []string{"new@x.com"}, got.To)
	assert.Equal(t, welcomeSubject, got.Subject)
	assert.Contains(t, got.Html, "Hi new@x.com")
	assert.Equal(t, []resend.Tag{{Name: "category", Value: "welcome"}}, got.Tags)
}

func TestSendWelcome_RateLimited(t *testing.T) {
	svc := newMockResendService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.Header().Set("ratelimit-limit", "100")
		w.Header().Set("ratelimit-remaining", "0")
		w.Header().Set("ratelimit-reset", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Rate limit exceeded"})
	})

	err := svc.SendWelcome(context.Background(), "new@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")

	var rateLimitErr *RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, time.Minute, rateLimitErr.RetryAfter)
	var resendErr *resend.RateLimitError
	assert.ErrorAs(t, err, &resendErr)
}

func TestResetWindow(t *testing.T) {
	tests := map[string]time.Duration{
		"30":     30 * time.Second,
		" 5 ":    5 * time.Second,
		"":       time.Minute,
		"soon":   time.Minute,
		"0":      time.Minute,
		"-3":     time.Minute,
		"999999": time.Hour,
	}
	for reset, want := range tests {
		assert.Equal(t, want, resetWindow(reset), "reset %q", reset)
	}
}

func TestSendWelcome_ServerError(t *testing.T) {
	svc := newMockResendService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "boom"})
	})

	err := svc.SendWelcome(context.Background(), "new@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send welcome email")
}

func TestSendWelcome_Disabled(t *testing.T) {
	var buf bytes.Buffer
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.New(&buf))
	require.NoError(t, err)
	assert.Nil(t, svc.resendClient)

	require.NoError(t, svc.SendWelcome(context.Background(), "new@x.com"))
	assert.Contains(t, buf.String(), "skipping welcome email")
	assert.NotContains(t, buf.String(), "new@x.com")
}

func TestSendWelcome_InvalidRecipient(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	for _, to := range []string{"", "not-an-email", "a@x.com\r\nBcc: evil@x.com"} {
		assert.Error(t, svc.SendWelcome(context.Background(), to), "recipient %q", to)
	}
}

func TestNewService_InvalidSender(t *testing.T) {
	_, err := NewService(config.EmailConfig{Enabled: true, From: "nope", ResendAPIKey: "k"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestWelcomeTemplateEscapesInput(t *testing.T) {
	svc, err := NewService(config.EmailConfig{}, zerolog.Nop())
	require.NoError(t, err)

	body, err := svc.renderTemplate("welcome.html", WelcomeData{Email: "<script>x</script>@x.com", CurrentYear: 2026})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "2026")
}
