package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/tixdesk/server/internal/domain/users"
)

// TxInserter is the part of *river.Client[pgx.Tx] the outbox uses.
type TxInserter interface {
	InsertManyTx(ctx context.Context, tx pgx.Tx, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// SignupOutbox implements users.Outbox with River. Jobs are inserted with
// the caller's transaction so they become visible to workers only when the
// account commits.
type SignupOutbox struct {
	inserter     TxInserter
	welcomeEmail bool
}

// NewSignupOutbox returns an outbox that always schedules the signup event
// and, when welcomeEmail is set, the welcome email.
func NewSignupOutbox(inserter TxInserter, welcomeEmail bool) *SignupOutbox {
	return &SignupOutbox{inserter: inserter, welcomeEmail: welcomeEmail}
}

func (o *SignupOutbox) EnqueueSignup(ctx context.Context, tx pgx.Tx, event users.SignupEvent) error {
	if tx == nil {
		return errors.New("signup outbox requires a transaction")
	}

	params := []river.InsertManyParams{{
		Args: UserSignupEventArgs{
			EventID:    event.ID,
			UserID:     event.UserID,
			Email:      event.Email,
			OccurredAt: event.OccurredAt,
		},
	}}
	if o.welcomeEmail {
		params = append(params, river.InsertManyParams{
			Args: WelcomeEmailArgs{UserID: event.UserID, Email: event.Email},
		})
	}

	if _, err := o.inserter.InsertManyTx(ctx, tx, params); err != nil {
		return fmt.Errorf("insert signup jobs: %w", err)
	}
	return nil
}
