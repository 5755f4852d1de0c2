package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Report summarises one ClassifyBatch run. Costs are summed as decimals
// rounded to cents.
type Report struct {
	RunID      string        `json:"run_id"`
	Branch     string        `json:"branch"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Total      int           `json:"total"`
	BaselineOK bool          `json:"baseline_built"`

	Counts    map[types.Status]int             `json:"counts"`
	Cost      map[types.Status]decimal.Decimal `json:"cost"`
	TotalCost decimal.Decimal                  `json:"total_cost"`

	FeedbackErrors int `json:"feedback_errors"`
	NotifyErrors   int `json:"notify_errors"`
	PersistErrors  int `json:"persist_errors"`

	Escalations []Escalation `json:"escalations"`
}

// Escalation is one escalated event as listed in a Report.
type Escalation struct {
	ID          int64           `json:"id"`
	Ingredient  string          `json:"ingredient"`
	Chef        string          `json:"chef,omitempty"`
	Cost        decimal.Decimal `json:"cost"`
	RootCauses  types.Causes    `json:"root_causes"`
	NotifyError string          `json:"notify_error,omitempty"`
}

func newReport(branch string, started time.Time) *Report {
	r := &Report{
		RunID:       uuid.NewString(),
		Branch:      branch,
		StartedAt:   started,
		Counts:      make(map[types.Status]int, len(types.Statuses)),
		Cost:        make(map[types.Status]decimal.Decimal, len(types.Statuses)),
		Escalations: []Escalation{},
	}
	for _, s := range types.Statuses {
		r.Counts[s] = 0
		r.Cost[s] = decimal.Zero
	}
	return r
}

func (r *Report) finish(events []types.WasteEvent, now time.Time) {
	r.Duration = now.Sub(r.StartedAt)
	r.Total = len(events)
	r.BaselineOK = len(events) > 0
	for i := range events {
		ev := &events[i]
		cost := costOf(ev)
		r.Counts[ev.Status]++
		r.Cost[ev.Status] = r.Cost[ev.Status].Add(cost)
		r.TotalCost = r.TotalCost.Add(cost)
		if ev.FeedbackError != "" {
			r.FeedbackErrors++
		}
		if ev.NotifyError != "" {
			r.NotifyErrors++
		}
		if ev.PersistError != "" {
			r.PersistErrors++
		}
		if ev.Status == types.StatusEscalated {
			r.Escalations = append(r.Escalations, Escalation{
				ID:          ev.ID,
				Ingredient:  ev.Ingredient,
				Chef:        ev.Chef,
				Cost:        cost,
				RootCauses:  ev.RootCauses,
				NotifyError: ev.NotifyError,
			})
		}
	}
}

func costOf(ev *types.WasteEvent) decimal.Decimal {
	if !ev.WastageCost.Valid {
		return decimal.Zero
	}
	return decimal.NewFromFloat(ev.WastageCost.Value).Round(2)
}
