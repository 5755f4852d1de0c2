package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wasteaudit/wasteaudit/auditor/internal/baseline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/narrative"
	"github.com/wasteaudit/wasteaudit/auditor/internal/notify"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// ErrNotifySkipped is recorded as NotifyError when feedback generation failed
// and the chef email was therefore not sent.
var ErrNotifySkipped = errors.New("skipped: feedback generation failed")

// Options configures a Router.
type Options struct {
	FeedbackTimeout time.Duration
	NotifyTimeout   time.Duration
	Compose         notify.ComposeOptions
}

// Router drives one evaluated event through the machine and performs the
// side effects attached to FeedbackGenerated and Notified. It never changes
// the event's Status; collaborator failures are recorded on the event.
//
// Router is safe for concurrent use when its Generator and Sender are.
type Router struct {
	gen    narrative.Generator
	sender notify.Sender
	opts   Options
}

// NewRouter returns a Router. A nil sender disables delivery.
func NewRouter(gen narrative.Generator, sender notify.Sender, opts Options) *Router {
	if opts.FeedbackTimeout <= 0 {
		opts.FeedbackTimeout = config.DefaultFeedbackTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = config.DefaultNotifyTimeout
	}
	return &Router{gen: gen, sender: sender, opts: opts}
}

// Route walks ev from Start to End and returns the visited states. ev.Status
// must already be set by the classifier.
func (r *Router) Route(ctx context.Context, ev *types.WasteEvent, b *baseline.Baseline, rules config.RulesConfig) []State {
	trace := []State{StateStart}
	for s := StateStart; !s.Terminal(); {
		next, err := Next(s, ev.Status)
		if err != nil {
			slog.Error("workflow: routing stopped", "event", ev.ID, "state", s, "status", ev.Status, "err", err)
			return trace
		}
		r.enter(ctx, next, ev, b, rules)
		trace = append(trace, next)
		s = next
	}
	return trace
}

func (r *Router) enter(ctx context.Context, s State, ev *types.WasteEvent, b *baseline.Baseline, rules config.RulesConfig) {
	switch s {
	case StateNoIssue, StateIgnore, StatePending:
		ev.Feedback = types.FeedbackNotApplicable
	case StateFeedbackGenerated:
		r.generate(ctx, ev, b)
	case StateNotified:
		r.notify(ctx, ev, rules)
	}
}

func (r *Router) generate(ctx context.Context, ev *types.WasteEvent, b *baseline.Baseline) {
	genCtx, cancel := context.WithTimeout(ctx, r.opts.FeedbackTimeout)
	defer cancel()

	text, err := r.gen.Generate(genCtx, narrative.ChefPrompt(ev, b))
	if err != nil {
		slog.Warn("workflow: feedback generation failed",
			"event", ev.ID,
			"generator", r.gen.Name(),
			"err", err,
		)
		ev.Feedback = narrative.FailureText(err)
		ev.FeedbackError = err.Error()
		return
	}
	ev.Feedback = text
}

func (r *Router) notify(ctx context.Context, ev *types.WasteEvent, rules config.RulesConfig) {
	if r.sender == nil {
		return
	}
	if ev.FeedbackError != "" {
		ev.NotifyError = ErrNotifySkipped.Error()
		return
	}

	m, err := notify.ComposeMessage(ev, r.opts.Compose)
	if err != nil {
		slog.Warn("workflow: cannot compose notification", "event", ev.ID, "err", err)
		ev.NotifyError = err.Error()
		return
	}
	m.Severity = notify.SeverityWarning
	if ev.WastageCost.Or(0) >= rules.CostCritical {
		m.Severity = notify.SeverityCritical
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.opts.NotifyTimeout)
	defer cancel()
	if err := r.sender.Send(sendCtx, m); err != nil {
		ev.NotifyError = err.Error()
		return
	}
	slog.Info(deliveryLog(r.sender),
		"event", ev.ID,
		"branch", ev.Branch,
		"sender", r.sender.Name(),
		"severity", m.Severity,
	)
}

// deliveryLog names what a nil error from s means: an asynchronous sender
// has only accepted the message.
func deliveryLog(s notify.Sender) string {
	if _, ok := s.(*notify.Dispatcher); ok {
		return "workflow: escalation queued"
	}
	return "workflow: escalation sent"
}
