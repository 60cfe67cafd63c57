package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/tixdesk/server/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// HealthCheck is the readiness response body.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult is the outcome of one readiness check. Status is "pass",
// "warn" or "fail"; only "fail" makes the server unready.
type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Check runs one readiness probe.
type Check func(ctx context.Context) CheckResult

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RowQuerier is satisfied by *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthChecker serves liveness and readiness endpoints.
type HealthChecker struct {
	version   string
	gitCommit string
	timeout   time.Duration
	names     []string
	checks    map[string]Check
}

func NewHealthChecker(version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		gitCommit: gitCommit,
		timeout:   5 * time.Second,
		checks:    make(map[string]Check),
	}
}

// Register adds a named readiness check. It is not safe to call once the
// server is serving.
func (h *HealthChecker) Register(name string, check Check) {
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
		sort.Strings(h.names)
	}
	h.checks[name] = check
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthChecker) Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Readyz runs every registered check concurrently and answers 503 if any
// of them fails.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		results := make(map[string]CheckResult, len(h.names))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range h.names {
			check := h.checks[name]
			g.Go(func() error {
				result := check(gctx)
				mu.Lock()
				results[name] = result
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		overall := "healthy"
		status := http.StatusOK
		for _, name := range h.names {
			result := results[name]
			gauge := 2.0
			switch result.Status {
			case "fail":
				gauge = 0
				overall = "unhealthy"
				status = http.StatusServiceUnavailable
				zerolog.Ctx(r.Context()).Warn().Str("check", name).Str("message", result.Message).Msg("readiness check failed")
			case "warn":
				gauge = 1
				if overall == "healthy" {
					overall = "degraded"
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(name).Set(gauge)
		}

		writeJSON(w, status, HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    results,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// DatabaseCheck pings the database with a 2s budget.
func DatabaseCheck(db Pinger) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		if db == nil {
			return CheckResult{Status: "fail", Message: "database pool not initialized"}
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := db.Ping(pingCtx); err != nil {
			message := "database ping failed"
			if pingCtx.Err() == context.DeadlineExceeded {
				message = "database ping timed out after 2 seconds"
			}
			return CheckResult{Status: "fail", Message: message, LatencyMs: time.Since(start).Milliseconds()}
		}
		return CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: time.Since(start).Milliseconds()}
	}
}

// MigrationsCheck fails when the schema is in a dirty migration state.
func MigrationsCheck(db RowQuerier) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		if db == nil {
			return CheckResult{Status: "fail", Message: "database pool not initialized"}
		}

		var (
			version int64
			dirty   bool
		)
		err := db.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return CheckResult{
				Status:    "fail",
				Message:   "failed to query migration version",
				LatencyMs: latency,
				Details:   map[string]any{"remediation": "run: server migrate up"},
			}
		}
		if dirty {
			return CheckResult{
				Status:    "fail",
				Message:   "database in dirty migration state - manual intervention required",
				LatencyMs: latency,
				Details:   map[string]any{"version": version, "dirty": true},
			}
		}
		return CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("migrations applied (version %d)", version),
			LatencyMs: latency,
			Details:   map[string]any{"version": version},
		}
	}
}

// JobQueueCheck reports the number of pending River jobs. A missing
// river_job table is a warning, not a failure: signups still commit and the
// jobs are picked up once River's schema exists.
func JobQueueCheck(db RowQuerier) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		if db == nil {
			return CheckResult{Status: "warn", Message: "job queue not initialized"}
		}

		var exists bool
		if err := db.QueryRow(ctx, `SELECT to_regclass('river_job') IS NOT NULL`).Scan(&exists); err != nil {
			return CheckResult{Status: "fail", Message: "failed to check job queue table", LatencyMs: time.Since(start).Milliseconds()}
		}
		if !exists {
			return CheckResult{
				Status:    "warn",
				Message:   "River job queue table not found",
				LatencyMs: time.Since(start).Milliseconds(),
				Details:   map[string]any{"remediation": "run: server migrate up"},
			}
		}

		var pending int64
		err := db.QueryRow(ctx, `SELECT count(*) FROM river_job WHERE state = ANY($1)`, []string{"available", "retryable", "running"}).Scan(&pending)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return CheckResult{Status: "fail", Message: "failed to query job queue", LatencyMs: latency}
		}
		return CheckResult{
			Status:    "pass",
			Message:   "River job queue operational",
			LatencyMs: latency,
			Details:   map[string]any{"pending_jobs": pending},
		}
	}
}
