package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wasteaudit/wasteaudit/auditor/internal/baseline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/metrics"
	"github.com/wasteaudit/wasteaudit/auditor/internal/notify"
	"github.com/wasteaudit/wasteaudit/auditor/internal/rules"
	"github.com/wasteaudit/wasteaudit/auditor/internal/source"
	"github.com/wasteaudit/wasteaudit/auditor/internal/store"
	"github.com/wasteaudit/wasteaudit/auditor/internal/workflow"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Options configures a Pipeline. Sink and Metrics may be nil.
type Options struct {
	Rules   config.RulesConfig
	Workers int
	Sink    store.Sink
	Metrics *metrics.Registry
}

// Pipeline is safe for concurrent use. Each batch captures the thresholds
// current at its start; SetRules affects later batches only.
type Pipeline struct {
	rules   atomic.Pointer[config.RulesConfig]
	workers int
	router  *workflow.Router
	sink    store.Sink
	metrics *metrics.Registry
	now     func() time.Time
}

// New returns a Pipeline routing escalations through router.
func New(router *workflow.Router, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultWorkers
	}
	p := &Pipeline{
		workers: opts.Workers,
		router:  router,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		now:     time.Now,
	}
	p.SetRules(opts.Rules)
	return p
}

// SetRules replaces the thresholds used by subsequent batches.
func (p *Pipeline) SetRules(r config.RulesConfig) { p.rules.Store(&r) }

// Rules returns the current thresholds.
func (p *Pipeline) Rules() config.RulesConfig { return *p.rules.Load() }

// Run fetches the branch's events for period from src and classifies them.
func (p *Pipeline) Run(ctx context.Context, src source.Source, branch string, period source.Period) ([]types.WasteEvent, *Report, error) {
	events, err := src.FetchBatch(ctx, branch, period)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: fetch %s %s: %w", branch, period, err)
	}
	return p.ClassifyBatch(ctx, branch, events)
}

// ClassifyBatch classifies events in place and returns them in input order.
//
// Narrative and notification failures are recorded on the affected events.
// A persistence failure is returned as the error, alongside the complete
// results and report.
func (p *Pipeline) ClassifyBatch(ctx context.Context, branch string, events []types.WasteEvent) ([]types.WasteEvent, *Report, error) {
	started := p.now()
	report := newReport(branch, started)
	if len(events) == 0 {
		report.finish(nil, p.now())
		slog.Info("pipeline: empty batch", "run", report.RunID, "branch", branch)
		return []types.WasteEvent{}, report, nil
	}

	r := p.Rules()
	for i := range events {
		events[i].Normalize()
	}
	b := baseline.Build(events, r)

	// Queued escalations may report back into the sink's results, so they
	// are handed to the dispatcher only once the batch is stored.
	routeCtx, hold := notify.WithHold(ctx)
	defer hold.Release()

	g, gctx := errgroup.WithContext(routeCtx)
	g.SetLimit(p.workers)
	for i := range events {
		ev := &events[i]
		g.Go(func() error {
			rules.Apply(ev, b, r)
			p.router.Route(gctx, ev, b, r)
			return nil
		})
	}
	_ = g.Wait() // workers record failures on their event

	var persistErr error
	if p.sink != nil {
		if err := p.sink.Store(ctx, events); err != nil {
			markUnpersisted(events, err)
			persistErr = fmt.Errorf("pipeline: persist %s: %w", branch, err)
		}
	}
	hold.Release()

	report.finish(events, p.now())
	p.observe(events)

	slog.Info("pipeline: batch classified",
		"run", report.RunID,
		"branch", branch,
		"events", report.Total,
		"escalated", report.Counts[types.StatusEscalated],
		"pending", report.Counts[types.StatusPending],
		"ignored", report.Counts[types.StatusIgnore],
		"no_issue", report.Counts[types.StatusNoIssue],
		"duration", report.Duration,
	)
	if persistErr != nil {
		slog.Error("pipeline: persistence failed", "run", report.RunID, "branch", branch, "err", persistErr)
	}
	return events, report, persistErr
}

// markUnpersisted attaches err to every event when the sink reported a
// batch-level failure without marking individual rows.
func markUnpersisted(events []types.WasteEvent, err error) {
	for i := range events {
		if events[i].PersistError != "" {
			return
		}
	}
	msg := err.Error()
	for i := range events {
		events[i].PersistError = msg
	}
}

func (p *Pipeline) observe(events []types.WasteEvent) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveBatch(events)
	for i := range events {
		if events[i].NotifyError == workflow.ErrNotifySkipped.Error() {
			p.metrics.ObserveNotification(metrics.OutcomeSkipped)
		}
	}
}

