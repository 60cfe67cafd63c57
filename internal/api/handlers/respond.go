package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tixdesk/server/internal/api/problem"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object from the request body into dst and
// writes the error response itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON object")
	}
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		problem.Write(w, r, problem.KindPayloadTooLarge, "request body too large", err)
	case errors.Is(err, io.EOF):
		problem.Write(w, r, problem.KindInvalidInput, "request body is required", err)
	default:
		problem.Write(w, r, problem.KindInvalidInput, "request body must be a JSON object", err)
	}
	return false
}
