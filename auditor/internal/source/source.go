package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/db"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("source: unknown backend")

// Source loads the raw events of one branch for one calendar month.
type Source interface {
	FetchBatch(ctx context.Context, branch string, p Period) ([]types.WasteEvent, error)
}

// Period is one calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod accepts a month name ("February", "feb") or number ("2").
func ParsePeriod(year int, month string) (Period, error) {
	if year < 1 {
		return Period{}, fmt.Errorf("source: invalid year %d", year)
	}
	m := strings.TrimSpace(month)
	if n, err := strconv.Atoi(m); err == nil {
		if n < 1 || n > 12 {
			return Period{}, fmt.Errorf("source: month %d out of range", n)
		}
		return Period{Year: year, Month: time.Month(n)}, nil
	}
	for i := time.January; i <= time.December; i++ {
		name := i.String()
		if strings.EqualFold(m, name) || (len(m) == 3 && strings.EqualFold(m, name[:3])) {
			return Period{Year: year, Month: i}, nil
		}
	}
	return Period{}, fmt.Errorf("source: unknown month %q", month)
}

// Start returns midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the exclusive upper bound of the month.
func (p Period) End() time.Time { return p.Start().AddDate(0, 1, 0) }

// Contains reports whether t falls within the month. Absent times never do.
func (p Period) Contains(t types.NullTime) bool {
	if !t.Valid {
		return false
	}
	y, m, _ := t.Time.Date()
	return y == p.Year && m == p.Month
}

func (p Period) String() string { return fmt.Sprintf("%s %d", p.Month, p.Year) }

// New returns the Source selected by cfg. path overrides cfg.Path for file
// backends when non-empty. A nil pool is opened from cfg.DSN() for postgres.
func New(ctx context.Context, cfg config.SourceConfig, path string, pool *pgxpool.Pool) (Source, error) {
	if path == "" {
		path = cfg.Path
	}
	switch cfg.Backend {
	case "postgres":
		if pool == nil {
			p, err := db.Connect(ctx, cfg.DSN())
			if err != nil {
				return nil, fmt.Errorf("source: %w", err)
			}
			pool = p
		}
		return NewPostgres(pool, cfg.Table), nil
	case "xlsx":
		if path == "" {
			return nil, fmt.Errorf("source: xlsx backend needs a path")
		}
		return NewXLSX(path, cfg.Sheet), nil
	case "json":
		if path == "" {
			return nil, fmt.Errorf("source: json backend needs a path")
		}
		return NewJSON(path), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
}

// filter keeps the events of branch within p, preserving order.
func filter(events []types.WasteEvent, branch string, p Period) []types.WasteEvent {
	branch = strings.TrimSpace(branch)
	out := events[:0]
	for _, ev := range events {
		if strings.TrimSpace(ev.Branch) == branch && p.Contains(ev.Date) {
			out = append(out, ev)
		}
	}
	return out
}

// parseFlag reads a yes/no style cell. Blank and unrecognised text is false.
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "t":
		return true
	}
	if v := types.ParseFloat(s); v.Valid {
		return v.Value != 0
	}
	return false
}
