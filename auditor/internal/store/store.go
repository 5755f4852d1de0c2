package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/db"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// ErrNotFound is returned when no result exists for an event ID.
var ErrNotFound = errors.New("store: result not found")

// Sink persists a classified batch. Implementations record per-event
// failures in PersistError and return them joined.
type Sink interface {
	Store(ctx context.Context, events []types.WasteEvent) error
}

// New builds the sink selected by cfg. pool may be nil unless the backend is
// postgres, in which case a nil pool is opened from cfg.DSN().
func New(ctx context.Context, cfg config.StoreConfig, pool *pgxpool.Pool) (Sink, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(cfg.TTL), nil
	case "postgres":
		if pool == nil {
			p, err := db.Connect(ctx, cfg.DSN())
			if err != nil {
				return nil, fmt.Errorf("store: %w", err)
			}
			pool = p
		}
		return NewPostgres(pool, cfg.Table), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// Tee stores every batch in each sink in order. All sinks are attempted;
// failures are joined.
type Tee []Sink

func (t Tee) Store(ctx context.Context, events []types.WasteEvent) error {
	var errs []error
	for _, s := range t {
		if err := s.Store(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
