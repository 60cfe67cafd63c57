package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindUserSignupEvent = "user_signup_event"
	JobKindWelcomeEmail    = "welcome_email"
)

const (
	QueueEvents = "events"
	QueueEmail  = "email"
)

const (
	SignupEventMaxAttempts  = 10
	WelcomeEmailMaxAttempts = 5
	DefaultMaxAttempts      = 5
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the default retry policy configuration.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindUserSignupEvent: {
				MaxAttempts: SignupEventMaxAttempts,
				BaseDelay:   10 * time.Second,
				MaxDelay:    1 * time.Hour,
			},
			JobKindWelcomeEmail: {
				MaxAttempts: WelcomeEmailMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	config := NewRetryPolicy().configFor(kind)
	opts := river.InsertOpts{MaxAttempts: config.MaxAttempts}
	switch kind {
	case JobKindUserSignupEvent:
		opts.Queue = QueueEvents
	case JobKindWelcomeEmail:
		opts.Queue = QueueEmail
	}
	return opts
}

// NewClientConfig builds a River client configuration with retry policy.
// A nil workers value yields an insert-only configuration.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook) *river.Config {
	policy := NewRetryPolicy()
	config := &river.Config{
		RetryPolicy: policy,
		MaxAttempts: policy.Default.MaxAttempts,
		Hooks:       hooks,
	}
	if workers != nil {
		config.Workers = workers
		config.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
			QueueEvents:        {MaxWorkers: 10},
			QueueEmail:         {MaxWorkers: 2},
		}
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewAlertingErrorHandler(logger, nil)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, hooks))
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseDelay: 1 * time.Minute, MaxDelay: 1 * time.Hour}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
