package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PublishSendsEvent(t *testing.T) {
	var (
		gotPath  string
		gotType  string
		received []Event
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ids":["x"],"status":200}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "event-key", server.Client())
	event := Event{ID: "01J0000000000000000000000A", Name: EventUserSignup, Data: map[string]any{"email": "a@x.com"}, TS: 1700000000000}

	require.NoError(t, client.Publish(context.Background(), event))

	assert.Equal(t, "/e/event-key", gotPath)
	assert.Equal(t, "application/json", gotType)
	require.Len(t, received, 1)
	assert.Equal(t, event.ID, received[0].ID)
	assert.Equal(t, EventUserSignup, received[0].Name)
	assert.Equal(t, "a@x.com", received[0].Data["email"])
	assert.Equal(t, int64(1700000000000), received[0].TS)
}

func TestClient_PublishStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{status: http.StatusBadRequest, permanent: true},
		{status: http.StatusUnauthorized, permanent: true},
		{status: http.StatusNotFound, permanent: true},
		{status: http.StatusTooManyRequests, permanent: false},
		{status: http.StatusInternalServerError, permanent: false},
		{status: http.StatusBadGateway, permanent: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			err := NewClient(server.URL, "k", server.Client()).Publish(context.Background(), Event{ID: "1", Name: EventUserSignup})

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.permanent, statusErr.Permanent())
			assert.Equal(t, "nope", statusErr.Body)
		})
	}
}

func TestClient_PublishNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url, "k", nil).Publish(context.Background(), Event{ID: "1", Name: EventUserSignup})

	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestClient_PublishHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient(server.URL, "k", server.Client()).Publish(ctx, Event{ID: "1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_FallsBackToLogSink(t *testing.T) {
	var buf bytes.Buffer
	publisher := New("  ", "", zerolog.New(&buf))

	sink, ok := publisher.(LogSink)
	require.True(t, ok, "expected LogSink, got %T", publisher)
	require.NoError(t, sink.Publish(context.Background(), Event{ID: "evt-1", Name: EventUserSignup, Data: map[string]any{"email": "secret@x.com"}}))

	assert.Contains(t, buf.String(), `"event_id":"evt-1"`)
	assert.NotContains(t, buf.String(), "secret@x.com")

	_, ok = New("https://inn.gs", "k", zerolog.Nop()).(*Client)
	assert.True(t, ok)
}
