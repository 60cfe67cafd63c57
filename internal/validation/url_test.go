package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointURL_Valid(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		requireHTTPS bool
	}{
		{name: "empty", url: ""},
		{name: "https", url: "https://inn.gs", requireHTTPS: true},
		{name: "http allowed outside production", url: "http://localhost:8288"},
		{name: "path prefix", url: "https://events.example.com/ingest/", requireHTTPS: true},
		{name: "uppercase scheme", url: "HTTPS://inn.gs", requireHTTPS: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, EndpointURL(tt.url, "EVENTS_BASE_URL", tt.requireHTTPS))
		})
	}
}

func TestEndpointURL_Invalid(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		requireHTTPS bool
		message      string
	}{
		{name: "no scheme", url: "inn.gs", message: "scheme"},
		{name: "ftp", url: "ftp://inn.gs", message: "http or https"},
		{name: "no host", url: "https://", message: "host"},
		{name: "http in production", url: "http://inn.gs", requireHTTPS: true, message: "HTTPS"},
		{name: "credentials", url: "https://user:pw@inn.gs", message: "credentials"},
		{name: "query", url: "https://inn.gs?x=1", message: "query"},
		{name: "empty query", url: "https://inn.gs?", message: "query"},
		{name: "fragment", url: "https://inn.gs#frag", message: "fragment"},
		{name: "unparseable", url: "https://[::1", message: "invalid URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EndpointURL(tt.url, "EVENTS_BASE_URL", tt.requireHTTPS)
			var urlErr URLError
			if assert.True(t, errors.As(err, &urlErr), "got %v", err) {
				assert.Equal(t, "EVENTS_BASE_URL", urlErr.Field)
				assert.Contains(t, urlErr.Message, tt.message)
			}
		})
	}
}

func TestURLError_Error(t *testing.T) {
	err := URLError{Field: "EVENTS_BASE_URL", Message: "URL must include a host", URL: "https://"}
	assert.Equal(t, "EVENTS_BASE_URL: URL must include a host (url: https://)", err.Error())
}
