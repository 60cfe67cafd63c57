package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/tixdesk/server/internal/domain/ids"
	"github.com/tixdesk/server/internal/email"
	"github.com/tixdesk/server/internal/notify"
)

// UserSignupEventArgs carries one signup event. EventID is stable across
// retries so the receiver can deduplicate.
type UserSignupEventArgs struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (UserSignupEventArgs) Kind() string { return JobKindUserSignupEvent }

func (UserSignupEventArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindUserSignupEvent)
}

// UserSignupEventWorker publishes the "user/signup" event. Rejections the
// event API will never accept cancel the job; everything else is retried.
type UserSignupEventWorker struct {
	river.WorkerDefaults[UserSignupEventArgs]
	Publisher notify.Publisher
	Logger    *slog.Logger
}

func (UserSignupEventWorker) Timeout(*river.Job[UserSignupEventArgs]) time.Duration {
	return 30 * time.Second
}

func (w UserSignupEventWorker) Work(ctx context.Context, job *river.Job[UserSignupEventArgs]) error {
	if w.Publisher == nil {
		return fmt.Errorf("event publisher not configured")
	}
	if job == nil {
		return fmt.Errorf("signup event job missing")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Receivers deduplicate on the event id; without a valid one the event
	// can never be delivered safely.
	if err := ids.ValidateULID(job.Args.EventID); err != nil {
		return river.JobCancel(fmt.Errorf("signup event %q for user %s: %w", job.Args.EventID, job.Args.UserID, err))
	}

	event := notify.Event{
		ID:   job.Args.EventID,
		Name: notify.EventUserSignup,
		Data: map[string]any{"email": job.Args.Email},
		TS:   job.Args.OccurredAt.UnixMilli(),
	}
	if err := w.Publisher.Publish(ctx, event); err != nil {
		if isPermanentDeliveryError(err) {
			logger.Error("signup event rejected; giving up",
				"event_id", job.Args.EventID,
				"user_id", job.Args.UserID,
				"error", err,
			)
			return river.JobCancel(err)
		}
		return fmt.Errorf("publish signup event %s: %w", job.Args.EventID, err)
	}

	logger.Info("signup event published",
		"event_id", job.Args.EventID,
		"user_id", job.Args.UserID,
		"attempt", job.Attempt,
	)
	return nil
}

func isPermanentDeliveryError(err error) bool {
	var statusErr *notify.StatusError
	return errors.As(err, &statusErr) && statusErr.Permanent()
}

// WelcomeEmailArgs schedules the welcome email for a new account.
type WelcomeEmailArgs struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (WelcomeEmailArgs) Kind() string { return JobKindWelcomeEmail }

func (WelcomeEmailArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindWelcomeEmail)
}

// WelcomeSender is implemented by email.Service.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, to string) error
}

type WelcomeEmailWorker struct {
	river.WorkerDefaults[WelcomeEmailArgs]
	Sender WelcomeSender
	Logger *slog.Logger
}

func (w WelcomeEmailWorker) Work(ctx context.Context, job *river.Job[WelcomeEmailArgs]) error {
	if w.Sender == nil {
		return fmt.Errorf("email sender not configured")
	}
	if job == nil {
		return fmt.Errorf("welcome email job missing")
	}

	if err := w.Sender.SendWelcome(ctx, job.Args.Email); err != nil {
		if delay, ok := snoozeFor(err); ok {
			if w.Logger != nil {
				w.Logger.Warn("welcome email rate limited; snoozing",
					"user_id", job.Args.UserID,
					"delay", delay,
				)
			}
			return river.JobSnooze(delay)
		}
		return fmt.Errorf("send welcome email: %w", err)
	}

	if w.Logger != nil {
		w.Logger.Info("welcome email processed", "user_id", job.Args.UserID, "attempt", job.Attempt)
	}
	return nil
}

// snoozeFor reports how long to wait before retrying a send the provider
// rate limited. Snoozed jobs do not consume an attempt.
func snoozeFor(err error) (time.Duration, bool) {
	var rateLimitErr *email.RateLimitError
	if !errors.As(err, &rateLimitErr) {
		return 0, false
	}
	return rateLimitErr.RetryAfter, true
}

// NewWorkers registers the account workers. A nil sender leaves the
// welcome email kind unregistered.
func NewWorkers(publisher notify.Publisher, sender WelcomeSender, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[UserSignupEventArgs](workers, UserSignupEventWorker{Publisher: publisher, Logger: logger})
	if sender != nil {
		river.AddWorker[WelcomeEmailArgs](workers, WelcomeEmailWorker{Sender: sender, Logger: logger})
	}
	return workers
}
