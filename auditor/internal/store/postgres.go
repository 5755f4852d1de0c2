package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Postgres writes status and chef feedback back onto the source table.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres returns a sink updating rows of table through pool.
func NewPostgres(pool *pgxpool.Pool, table string) *Postgres {
	return &Postgres{pool: pool, table: table}
}

func (p *Postgres) updateSQL() string {
	return fmt.Sprintf(`UPDATE %s SET status = $1, chef_feedback = $2 WHERE id = $3`,
		pgx.Identifier{p.table}.Sanitize())
}

// Store sends one UPDATE per event in a single batch. Every failed row gets
// its PersistError set; the errors are returned joined.
func (p *Postgres) Store(ctx context.Context, events []types.WasteEvent) error {
	if len(events) == 0 {
		return nil
	}
	q := p.updateSQL()
	batch := &pgx.Batch{}
	for i := range events {
		batch.Queue(q, string(events[i].Status), storedFeedback(events[i].Feedback), events[i].ID)
	}

	br := p.pool.SendBatch(ctx, batch)
	var errs []error
	for i := range events {
		tag, err := br.Exec()
		if err == nil && tag.RowsAffected() == 0 {
			err = fmt.Errorf("no row with id %d", events[i].ID)
		}
		if err != nil {
			events[i].PersistError = err.Error()
			errs = append(errs, fmt.Errorf("store: update event %d: %w", events[i].ID, err))
		}
	}
	if err := br.Close(); err != nil && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("store: close batch: %w", err))
	}
	return errors.Join(errs...)
}

// storedFeedback maps the NotApplicable sentinel to an empty column value.
func storedFeedback(s string) string {
	if s == types.FeedbackNotApplicable {
		return ""
	}
	return s
}
