package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/notify"
	"github.com/wasteaudit/wasteaudit/auditor/internal/pipeline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/source"
	"github.com/wasteaudit/wasteaudit/auditor/internal/store"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// maxBodyBytes bounds POST request bodies.
const maxBodyBytes = 1 << 20

var errBadRecipient = errors.New("missing or invalid chef_email")

// Classifier runs one branch-month through the pipeline.
type Classifier interface {
	Run(ctx context.Context, src source.Source, branch string, p source.Period) ([]types.WasteEvent, *pipeline.Report, error)
}

// Deps wires the handler to the rest of the auditor. Sender may be nil, in
// which case feedback resends fail with 503. Changed, when set, is called
// after a request modified the held results.
type Deps struct {
	Pipeline      Classifier
	Source        source.Source
	Results       *store.Memory
	Sender        notify.Sender
	Compose       notify.ComposeOptions
	NotifyTimeout time.Duration
	Changed       func()
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = config.DefaultNotifyTimeout
	}
	h := &Handler{deps: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/analyze", h.analyze)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/results", h.listResults)
	h.mux.HandleFunc("/api/v1/results/", h.getResult) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/feedback/send", h.sendFeedback)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, buildHealth(h.deps.Results.List("")))
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.deps.Results))
}

// analyze returns GET /api/v1/analyze?branch=&year=&month= and classifies
// the branch-month on the request's context.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	branch := strings.TrimSpace(q.Get("branch"))
	if branch == "" {
		jsonErr(w, http.StatusBadRequest, "branch is required")
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "year must be an integer")
		return
	}
	period, err := source.ParsePeriod(year, q.Get("month"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	events, report, err := h.deps.Pipeline.Run(r.Context(), h.deps.Source, branch, period)
	if report == nil {
		slog.Error("api: analyze failed", "branch", branch, "period", period.String(), "err", err)
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		jsonErr(w, http.StatusNotFound, "no data found for the specified branch, year, and month")
		return
	}

	h.changed()

	resp := AnalyzeResponse{Report: report, Results: make([]ResultResponse, 0, len(events))}
	for _, ev := range events {
		resp.Results = append(resp.Results, toResultResponse(ev, time.Time{}))
	}
	code := http.StatusOK
	if err != nil {
		// Results are complete; only persistence failed.
		resp.Error = err.Error()
		code = http.StatusInternalServerError
	}
	jsonResp(w, code, resp)
}

// listResults returns GET /api/v1/results, optionally filtered by ?branch=.
func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries := h.deps.Results.List(strings.TrimSpace(r.URL.Query().Get("branch")))
	out := make([]ResultResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toResultResponse(e.Event, e.UpdatedAt))
	}
	jsonResp(w, http.StatusOK, out)
}

// getResult returns GET /api/v1/results/{id}.
func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/results/")
	if raw == "" {
		h.listResults(w, r)
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	e, err := h.deps.Results.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "result not found")
		return
	}
	jsonResp(w, http.StatusOK, toResultResponse(e.Event, e.UpdatedAt))
}

// sendFeedback handles POST /api/v1/feedback/send. Only escalated results
// holding generated feedback qualify; 404 when none of the requested do.
func (h *Handler) sendFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.deps.Sender == nil {
		jsonErr(w, http.StatusServiceUnavailable, "notification service not configured")
		return
	}
	var req SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	type job struct {
		ev types.WasteEvent
		to string
	}
	var jobs []job
	for _, rec := range req.Records {
		e, err := h.deps.Results.Get(rec.ID)
		if err != nil || !resendable(e.Event) {
			continue
		}
		jobs = append(jobs, job{ev: e.Event, to: strings.TrimSpace(rec.ChefEmail)})
	}
	if len(jobs) == 0 {
		jsonErr(w, http.StatusNotFound, "no escalated records with feedback found")
		return
	}

	resp := SendResponse{Total: len(jobs), Sent: []int64{}, Failed: []int64{}, Errors: map[int64]string{}}
	for _, j := range jobs {
		id := j.ev.ID
		if err := h.send(r.Context(), j.ev, j.to); err != nil {
			resp.Failed = append(resp.Failed, id)
			resp.Errors[id] = err.Error()
			_ = h.deps.Results.SetNotifyError(id, err.Error())
			continue
		}
		resp.Sent = append(resp.Sent, id)
		_ = h.deps.Results.SetNotifyError(id, "")
	}
	h.changed()
	slog.Info("api: feedback resent", "total", resp.Total, "sent", len(resp.Sent), "failed", len(resp.Failed))
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) changed() {
	if h.deps.Changed != nil {
		h.deps.Changed()
	}
}

func (h *Handler) send(ctx context.Context, ev types.WasteEvent, to string) error {
	if to == "" || !strings.Contains(to, "@") {
		return errBadRecipient
	}
	opts := h.deps.Compose
	opts.Recipient = to
	m, err := notify.ComposeMessage(&ev, opts)
	if err != nil {
		return err
	}
	m.Severity = notify.SeverityWarning
	sendCtx, cancel := context.WithTimeout(ctx, h.deps.NotifyTimeout)
	defer cancel()
	return h.deps.Sender.Send(sendCtx, m)
}

// resendable reports whether ev carries feedback that can be mailed.
func resendable(ev types.WasteEvent) bool {
	return ev.Status == types.StatusEscalated &&
		ev.FeedbackError == "" &&
		strings.TrimSpace(ev.Feedback) != "" &&
		ev.Feedback != types.FeedbackNotApplicable
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot projects every live result in st. Exported so the ws hub
// can produce the same payload.
func BuildSnapshot(st *store.Memory) SnapshotResponse {
	entries := st.List("")
	out := SnapshotResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Health:      buildHealth(entries),
		Results:     make([]ResultResponse, 0, len(entries)),
	}
	for _, e := range entries {
		out.Results = append(out.Results, toResultResponse(e.Event, e.UpdatedAt))
	}
	return out
}

func buildHealth(entries []store.Entry) HealthResponse {
	resp := HealthResponse{State: "ok", ResultCount: len(entries)}
	for _, e := range entries {
		switch e.Event.Status {
		case types.StatusEscalated:
			resp.EscalatedCount++
		case types.StatusPending:
			resp.PendingCount++
		}
	}
	return resp
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
