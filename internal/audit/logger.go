package audit

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single audit record for an account operation.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// MarshalZerologObject lets entries be nested under the "audit" key.
func (e Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Time("timestamp", e.Timestamp).
		Str("action", e.Action).
		Str("actor", e.Actor).
		Str("status", e.Status)
	if e.ResourceType != "" {
		ev.Str("resource_type", e.ResourceType)
	}
	if e.ResourceID != "" {
		ev.Str("resource_id", e.ResourceID)
	}
	if e.IPAddress != "" {
		ev.Str("ip_address", e.IPAddress)
	}
	if len(e.Details) > 0 {
		dict := zerolog.Dict()
		for k, v := range e.Details {
			dict.Str(k, v)
		}
		ev.Dict("details", dict)
	}
}

// Logger writes audit entries as structured log lines.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger writing JSON to stdout.
func NewLogger() *Logger {
	return NewLoggerWithZerolog(zerolog.New(os.Stdout).With().Timestamp().Logger())
}

func NewLoggerWithZerolog(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// Log writes entry. A nil Logger discards it. Entries without an IP address
// take the one recorded in ctx by Middleware.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = ClientIPFromContext(ctx)
	}
	ev := l.logger.Info()
	if entry.Status == StatusFailure {
		ev = l.logger.Warn()
	}
	ev.Object("audit", entry).Msg(entry.Action)
}

func (l *Logger) LogSuccess(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
		Details:      details,
	})
}

func (l *Logger) LogFailure(ctx context.Context, action, actor string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:  action,
		Actor:   actor,
		Status:  StatusFailure,
		Details: details,
	})
}

type clientIPKey struct{}

func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// Middleware records the caller's address so audit entries logged while
// serving the request carry it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ContextWithClientIP(r.Context(), ClientIP(r))))
	})
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the
// remote host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
