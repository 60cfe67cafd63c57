// Package problem writes JSON error bodies for the HTTP API.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/json"

// Kind names a class of failure. It is returned to clients verbatim in the
// "error" field.
type Kind string

const (
	KindInvalidInput       Kind = "InvalidInput"
	KindUnauthenticated    Kind = "Unauthenticated"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindForbidden          Kind = "Forbidden"
	KindNotFound           Kind = "NotFound"
	KindAlreadyExists      Kind = "AlreadyExists"
	KindMethodNotAllowed   Kind = "MethodNotAllowed"
	KindPayloadTooLarge    Kind = "PayloadTooLarge"
	KindInternalError      Kind = "InternalError"
)

// Status returns the HTTP status for k.
func (k Kind) Status() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape of every error response.
type Body struct {
	Error    Kind   `json:"error"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Instance string `json:"instance,omitempty"`
	Details  string `json:"details,omitempty"`
}

type Option func(*Body)

// WithDetails sets a diagnostic string. It must never carry credentials or
// raw store errors.
func WithDetails(details string) Option {
	return func(b *Body) {
		b.Details = details
	}
}

// Write logs err through the request logger and writes a Body for kind.
// err is never serialized; message is the client-safe text.
func Write(w http.ResponseWriter, r *http.Request, kind Kind, message string, err error, opts ...Option) {
	status := kind.Status()
	body := Body{
		Error:   kind,
		Message: message,
		Status:  status,
	}
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	if r != nil {
		body.Instance = r.URL.Path
	}
	for _, opt := range opts {
		opt(&body)
	}

	if r != nil {
		logger := zerolog.Ctx(r.Context())
		var event *zerolog.Event
		if status >= 500 {
			event = logger.Error()
		} else {
			event = logger.Warn()
		}
		event.
			Err(err).
			Int("status", status).
			Str("kind", string(kind)).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(body.Message)
	}

	WriteBody(w, body)
}

// Internal writes an InternalError whose details name the failed operation
// and the request id, so operators can find the logged cause.
func Internal(w http.ResponseWriter, r *http.Request, operation string, err error) {
	details := operation + " failed"
	if id := w.Header().Get("X-Request-ID"); id != "" {
		details += "; request id " + id
	}
	Write(w, r, KindInternalError, "internal server error", err, WithDetails(details))
}

func WriteBody(w http.ResponseWriter, body Body) {
	payload, err := json.Marshal(body)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"InternalError","message":"internal server error","status":500}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(body.Status)
	_, _ = w.Write(payload)
}
