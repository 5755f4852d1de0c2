package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Postgres reads waste logs from a table with snake_case columns. Nullable
// columns scan into pointers and become absent fields.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres returns a Source reading table through pool.
func NewPostgres(pool *pgxpool.Pool, table string) *Postgres {
	return &Postgres{pool: pool, table: table}
}

func (p *Postgres) selectSQL() string {
	return fmt.Sprintf(`SELECT id, date, branch, branch_manager, chef, chef_email, recipe,
       ingredient, kitchen_station, shift, supplier_name, peak_hour_flag, expiry_date,
       temperature_c, planned_qty, wastage_qty, expected_waste_qty, wastage_cost, sales_qty
  FROM %s
 WHERE branch = $1 AND date >= $2 AND date < $3
 ORDER BY id`, pgx.Identifier{p.table}.Sanitize())
}

// FetchBatch implements Source.
func (p *Postgres) FetchBatch(ctx context.Context, branch string, period Period) ([]types.WasteEvent, error) {
	rows, err := p.pool.Query(ctx, p.selectSQL(), branch, period.Start(), period.End())
	if err != nil {
		return nil, fmt.Errorf("source: query %s: %w", p.table, err)
	}
	defer rows.Close()

	var events []types.WasteEvent
	for rows.Next() {
		var (
			ev                                            types.WasteEvent
			manager, chef, email, recipe, ingredient      *string
			station, shift, supplier                      *string
			peak                                          *bool
			date, expiry                                  *time.Time
			temp, planned, wastage, expected, cost, sales *float64
		)
		if err := rows.Scan(&ev.ID, &date, &ev.Branch, &manager, &chef, &email, &recipe,
			&ingredient, &station, &shift, &supplier, &peak, &expiry,
			&temp, &planned, &wastage, &expected, &cost, &sales); err != nil {
			return nil, fmt.Errorf("source: scan %s: %w", p.table, err)
		}
		ev.BranchManager = deref(manager)
		ev.Chef = deref(chef)
		ev.ChefEmail = deref(email)
		ev.Recipe = deref(recipe)
		ev.Ingredient = deref(ingredient)
		ev.Station = deref(station)
		ev.Shift = deref(shift)
		ev.Supplier = deref(supplier)
		ev.PeakHour = peak != nil && *peak
		ev.Date = types.TimePtr(date)
		ev.ExpiryDate = types.TimePtr(expiry)
		ev.Temperature = types.FloatPtr(temp)
		ev.PlannedQty = types.FloatPtr(planned)
		ev.WastageQty = types.FloatPtr(wastage)
		ev.ExpectedWasteQty = types.FloatPtr(expected)
		ev.WastageCost = types.FloatPtr(cost)
		ev.SalesQty = types.FloatPtr(sales)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: read %s: %w", p.table, err)
	}
	return events, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
