package api

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// BuildInfo is set through ldflags at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// WithDefaults fills unset fields with "dev" and "unknown".
func (b BuildInfo) WithDefaults() BuildInfo {
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.GitCommit == "" {
		b.GitCommit = "unknown"
	}
	if b.BuildDate == "" {
		b.BuildDate = "unknown"
	}
	return b
}

type versionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// VersionHandler serves build metadata on GET /version.
func VersionHandler(info BuildInfo) http.Handler {
	info = info.WithDefaults()
	payload, _ := json.Marshal(versionResponse{
		Version:   info.Version,
		GitCommit: info.GitCommit,
		BuildDate: info.BuildDate,
		GoVersion: runtime.Version(),
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})
}
