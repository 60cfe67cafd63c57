// Package validation checks operator-supplied values before the server
// starts using them.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLError describes why a configured URL was rejected.
type URLError struct {
	Field   string
	Message string
	URL     string
}

func (e URLError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// EndpointURL validates the base URL of an outbound HTTP API. It must be
// absolute http(s) with a host and carry no query or fragment, since
// request paths are appended to it. Empty is allowed and means "not
// configured".
func EndpointURL(raw, field string, requireHTTPS bool) error {
	if raw == "" {
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return URLError{Field: field, Message: "invalid URL format", URL: raw}
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case scheme == "":
		return URLError{Field: field, Message: "URL must include a scheme (http:// or https://)", URL: raw}
	case scheme != "http" && scheme != "https":
		return URLError{Field: field, Message: "URL scheme must be http or https", URL: raw}
	case parsed.Host == "":
		return URLError{Field: field, Message: "URL must include a host", URL: raw}
	case requireHTTPS && scheme != "https":
		return URLError{Field: field, Message: "URL must use HTTPS in production", URL: raw}
	case parsed.User != nil:
		return URLError{Field: field, Message: "URL must not embed credentials", URL: raw}
	case parsed.RawQuery != "" || parsed.ForceQuery:
		return URLError{Field: field, Message: "URL must not contain query parameters", URL: raw}
	case parsed.Fragment != "":
		return URLError{Field: field, Message: "URL must not contain a fragment", URL: raw}
	}
	return nil
}
