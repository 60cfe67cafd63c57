package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse matches the readiness body served by /readyz.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	var (
		timeout       time.Duration
		url           string
		allowDegraded bool
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is ready",
		Long: `Performs a readiness check by calling the /readyz endpoint.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = defaultHealthcheckURL()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := performHealthCheck(ctx, http.DefaultClient, url)
			if err != nil {
				return err
			}
			if resp.Status == "healthy" || (allowDegraded && resp.Status == "degraded") {
				fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", resp.Status)
				return nil
			}
			for name, check := range resp.Checks {
				if check.Status != "pass" {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s %s\n", name, check.Status, check.Message)
				}
			}
			return fmt.Errorf("server status: %s", resp.Status)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&url, "url", "", "readiness URL (default: http://localhost:{SERVER_PORT}/readyz)")
	cmd.Flags().BoolVar(&allowDegraded, "allow-degraded", false, "treat a degraded server as healthy")
	return cmd
}

func defaultHealthcheckURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/readyz", port)
}

// performHealthCheck fetches url and decodes the readiness body. A 503
// still carries a body, so only transport and decode failures are errors.
func performHealthCheck(ctx context.Context, client *http.Client, url string) (HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return HealthResponse{}, fmt.Errorf("parse health check response (status %d): %w", resp.StatusCode, err)
	}
	if body.Status == "" {
		return HealthResponse{}, fmt.Errorf("health check response has no status (status %d)", resp.StatusCode)
	}
	return body, nil
}
