package metrics

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

const namespace = "wasteaudit_"

// Notification outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeDropped = "dropped"
)

// Registry accumulates counters across batches. The zero value is not
// usable; call New.
type Registry struct {
	mu sync.Mutex

	batches       float64
	persistErrors float64
	lastBatch     time.Time
	events        map[string]float64
	causes        map[string]float64
	cost          map[string]float64
	notifications map[string]float64

	// QueuePending, when set, reports the async notification queue depth.
	QueuePending func() int

	now func() time.Time
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		events:        make(map[string]float64),
		causes:        make(map[string]float64),
		cost:          make(map[string]float64),
		notifications: make(map[string]float64),
		now:           time.Now,
	}
}

// ObserveBatch counts one classified batch.
func (r *Registry) ObserveBatch(events []types.WasteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	r.lastBatch = r.now()
	for i := range events {
		ev := &events[i]
		r.events[string(ev.Status)]++
		r.cost[string(ev.Status)] += ev.WastageCost.Or(0)
		for _, c := range ev.RootCauses {
			r.causes[string(c)]++
		}
		if ev.PersistError != "" {
			r.persistErrors++
		}
	}
}

// ObserveNotification counts one notification outcome.
func (r *Registry) ObserveNotification(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[outcome]++
}

// Gather returns every non-empty family sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	mfs := []*dto.MetricFamily{
		counter("batches_total", "Classified batches.", "", map[string]float64{"": r.batches}),
		counter("events_total", "Classified events by status.", "status", r.events),
		counter("root_causes_total", "Root causes reported by cause code.", "cause", r.causes),
		counter("wastage_cost_total", "Wastage cost by status.", "status", r.cost),
		counter("notifications_total", "Escalation notifications by outcome.", "outcome", r.notifications),
		counter("persist_errors_total", "Events whose result could not be persisted.", "", map[string]float64{"": r.persistErrors}),
	}
	if r.QueuePending != nil {
		mfs = append(mfs, gauge("notify_queue_pending", "Notifications waiting in the async queue.", float64(r.QueuePending())))
	}
	if !r.lastBatch.IsZero() {
		mfs = append(mfs, gauge("last_batch_timestamp_seconds", "Unix time of the last classified batch.", float64(r.lastBatch.Unix())))
	}
	out := mfs[:0]
	for _, mf := range mfs {
		if len(mf.Metric) > 0 { // the text encoder rejects empty families
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText encodes the registry in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the registry at GET /metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := r.WriteText(w); err != nil {
			slog.Error("metrics: write failed", "err", err)
		}
	})
}

// counter builds a counter family with one metric per label value, sorted.
// An empty label name yields an unlabelled metric from the "" key.
func counter(name, help, label string, values map[string]float64) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(values[k])}}
		if label != "" {
			m.Label = []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(k)}}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
