package api

import (
	"time"

	"github.com/wasteaudit/wasteaudit/auditor/internal/pipeline"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string `json:"state"`
	ResultCount    int    `json:"result_count"`
	EscalatedCount int    `json:"escalated_count"`
	PendingCount   int    `json:"pending_count"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket frame.
type SnapshotResponse struct {
	GeneratedAt string           `json:"generated_at"` // RFC3339
	Health      HealthResponse   `json:"health"`
	Results     []ResultResponse `json:"results"`
}

// ResultResponse is one classified event. Date, Time and Weekday are "N/A"
// when the event has no date.
type ResultResponse struct {
	ID             int64  `json:"id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Weekday        string `json:"weekday"`
	Recipe         string `json:"recipe"`
	Ingredient     string `json:"ingredient"`
	KitchenStation string `json:"kitchen_station"`
	Branch         string `json:"branch"`
	BranchManager  string `json:"branch_manager"`
	Chef           string `json:"chef"`
	Status         string `json:"status"`
	ChefFeedback   string `json:"chef_feedback"`

	WasteRate     float64            `json:"waste_rate"`
	CombinedFlag  types.CombinedFlag `json:"combined_flag"`
	RootCauses    string             `json:"root_causes"`
	Summary       string             `json:"summary,omitempty"`
	FeedbackError string             `json:"feedback_error,omitempty"`
	NotifyError   string             `json:"notify_error,omitempty"`
	PersistError  string             `json:"persist_error,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"` // RFC3339
}

// AnalyzeResponse is the payload for GET /api/v1/analyze.
type AnalyzeResponse struct {
	Report  *pipeline.Report `json:"report"`
	Results []ResultResponse `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// SendRequest is the body of POST /api/v1/feedback/send.
type SendRequest struct {
	Records []SendRecord `json:"records"`
}

// SendRecord names one stored result and the address to send it to.
type SendRecord struct {
	ID        int64  `json:"id"`
	ChefEmail string `json:"chef_email"`
}

// SendResponse is the payload for POST /api/v1/feedback/send.
type SendResponse struct {
	Total  int              `json:"total"`
	Sent   []int64          `json:"sent"`
	Failed []int64          `json:"failed"`
	Errors map[int64]string `json:"errors"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// toResultResponse projects a classified event for the API.
func toResultResponse(ev types.WasteEvent, updated time.Time) ResultResponse {
	out := ResultResponse{
		ID:             ev.ID,
		Date:           "N/A",
		Time:           "N/A",
		Weekday:        "N/A",
		Recipe:         ev.Recipe,
		Ingredient:     ev.Ingredient,
		KitchenStation: ev.Station,
		Branch:         ev.Branch,
		BranchManager:  ev.BranchManager,
		Chef:           ev.Chef,
		Status:         string(ev.Status),
		ChefFeedback:   ev.Feedback,
		WasteRate:      ev.WasteRate,
		CombinedFlag:   ev.Flags.Combined,
		RootCauses:     ev.RootCauses.String(),
		Summary:        ev.Summary,
		FeedbackError:  ev.FeedbackError,
		NotifyError:    ev.NotifyError,
		PersistError:   ev.PersistError,
	}
	if ev.Date.Valid {
		out.Date = ev.Date.Time.Format("2006-01-02")
		out.Time = ev.Date.Time.Format("15:04")
		out.Weekday = ev.Date.Time.Weekday().String()
	}
	if !updated.IsZero() {
		out.UpdatedAt = updated.UTC().Format(time.RFC3339)
	}
	return out
}
