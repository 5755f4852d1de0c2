package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

func parse(t *testing.T, text string) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parse exposition: %v\n%s", err, text)
	}
	return mfs
}

// value returns the counter or gauge value of the metric whose label matches.
func value(mf *dto.MetricFamily, label, want string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		match := label == ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == want {
				match = true
			}
		}
		if !match {
			continue
		}
		if m.Counter != nil {
			return m.Counter.GetValue(), true
		}
		return m.Gauge.GetValue(), true
	}
	return 0, false
}

func batch() []types.WasteEvent {
	return []types.WasteEvent{
		{Status: types.StatusEscalated, WastageCost: types.Float(150), RootCauses: types.Causes{types.CauseExpiredUsed, types.CauseShiftIssue}},
		{Status: types.StatusEscalated, WastageCost: types.Float(40.5), RootCauses: types.Causes{types.CauseShiftIssue}, PersistError: "no row"},
		{Status: types.StatusIgnore, WastageCost: types.Float(2)},
		{Status: types.StatusNoIssue},
	}
}

func TestWriteText(t *testing.T) {
	r := New()
	r.now = func() time.Time { return time.Unix(1739557800, 0) }
	r.ObserveBatch(batch())
	r.ObserveBatch(batch()[2:])
	r.ObserveNotification(OutcomeSent)
	r.ObserveNotification(OutcomeFailed)
	r.ObserveNotification(OutcomeSent)
	r.QueuePending = func() int { return 3 }

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	mfs := parse(t, buf.String())

	tests := []struct {
		family string
		label  string
		lv     string
		want   float64
	}{
		{"wasteaudit_batches_total", "", "", 2},
		{"wasteaudit_events_total", "status", "Escalated", 2},
		{"wasteaudit_events_total", "status", "Ignore", 2},
		{"wasteaudit_events_total", "status", "NoIssue", 2},
		{"wasteaudit_root_causes_total", "cause", "Shift_Issue", 2},
		{"wasteaudit_root_causes_total", "cause", "Expired_Used", 1},
		{"wasteaudit_wastage_cost_total", "status", "Escalated", 190.5},
		{"wasteaudit_notifications_total", "outcome", "sent", 2},
		{"wasteaudit_notifications_total", "outcome", "failed", 1},
		{"wasteaudit_persist_errors_total", "", "", 1},
		{"wasteaudit_notify_queue_pending", "", "", 3},
		{"wasteaudit_last_batch_timestamp_seconds", "", "", 1739557800},
	}
	for _, tc := range tests {
		got, ok := value(mfs[tc.family], tc.label, tc.lv)
		if !ok {
			t.Errorf("%s{%s=%q}: missing", tc.family, tc.label, tc.lv)
			continue
		}
		if got != tc.want {
			t.Errorf("%s{%s=%q} = %v, want %v", tc.family, tc.label, tc.lv, got, tc.want)
		}
	}
	if mfs["wasteaudit_events_total"].GetType() != dto.MetricType_COUNTER {
		t.Error("events_total should be a counter")
	}
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := New().WriteText(&buf); err != nil {
		t.Fatalf("WriteText on empty registry: %v", err)
	}
	mfs := parse(t, buf.String())
	if _, ok := mfs["wasteaudit_events_total"]; ok {
		t.Error("empty labelled families should be omitted")
	}
	if got, _ := value(mfs["wasteaudit_batches_total"], "", ""); got != 0 {
		t.Errorf("batches_total = %v, want 0", got)
	}
	if _, ok := mfs["wasteaudit_last_batch_timestamp_seconds"]; ok {
		t.Error("last batch gauge should be absent before the first batch")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.ObserveBatch(batch())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	mfs := parse(t, rec.Body.String())
	if got, _ := value(mfs["wasteaudit_events_total"], "status", "Escalated"); got != 2 {
		t.Errorf("events_total{Escalated} = %v, want 2", got)
	}
}
