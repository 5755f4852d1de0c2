package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wasteaudit/wasteaudit/auditor/internal/baseline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

func escalatedEvent() *types.WasteEvent {
	day := time.Date(2025, 2, 14, 18, 30, 0, 0, time.UTC)
	return &types.WasteEvent{
		ID:               3,
		Branch:           "LA - Downtown",
		Ingredient:       "Prime Beef",
		Station:          "Grill",
		Shift:            "Night",
		Supplier:         "SupplierY",
		Date:             types.Time(day),
		ExpiryDate:       types.Time(day.AddDate(0, 0, -2)),
		PlannedQty:       types.Float(10),
		WastageQty:       types.Float(5),
		ExpectedWasteQty: types.Float(1),
		WastageCost:      types.Float(150),
		WasteRate:        0.5,
		Flags: types.Flags{
			Deviation: true, HighRate: true, Combined: types.CombinedBoth,
			ExpiredUsed: true, ShiftIssue: true,
		},
		RootCauses: types.Causes{types.CauseExpiredUsed, types.CauseShiftIssue},
		Status:     types.StatusEscalated,
		Summary:    "Waste Analysis Summary for Item: Prime Beef",
	}
}

// --- ChefPrompt ---

func TestChefPrompt(t *testing.T) {
	p := ChefPrompt(escalatedEvent(), &baseline.Baseline{OverallAvg: 0.1})

	for _, want := range []string{
		"Item: Prime Beef.",
		"Wastage Event: Prime Beef on 2025-02-14. The high-cost item had a waste value of $150.00.",
		"We wasted 5.0 units, which is significantly more than the expected waste of 1.0 units.",
		"The waste rate for this item (50.00%) is much higher than the standard branch rate (10.00%).",
		"after its Expiry Date (2025-02-12)",
		"during the 'Night' shift",
		"Analysis:\nWaste Analysis Summary for Item: Prime Beef",
		"Write ONLY the main body of the email",
	} {
		if !strings.Contains(p.User, want) {
			t.Errorf("user prompt missing %q\n%s", want, p.User)
		}
	}
	if !strings.Contains(p.System, "Output ONLY the main body") {
		t.Errorf("system prompt = %q", p.System)
	}
}

func TestChefPrompt_OfflineBody(t *testing.T) {
	ev := escalatedEvent()
	p := ChefPrompt(ev, &baseline.Baseline{OverallAvg: 0.1})

	if !strings.HasPrefix(p.Offline, "Team, we need to address the waste on our Prime Beef.") {
		t.Errorf("offline body = %q", p.Offline)
	}
	if !strings.HasSuffix(p.Offline, "Please double-check the expiry date and FIFO tag every time you pull stock.") {
		t.Errorf("offline body should end with the top-cause recommendation: %q", p.Offline)
	}
	if again := ChefPrompt(ev, &baseline.Baseline{OverallAvg: 0.1}).Offline; again != p.Offline {
		t.Error("offline body must be deterministic")
	}
	for _, banned := range []string{"Hello", "Regards", "Subject:"} {
		if strings.Contains(p.Offline, banned) {
			t.Errorf("offline body must not contain %q", banned)
		}
	}
}

func TestRecommendation_PerCause(t *testing.T) {
	ev := escalatedEvent()
	for _, c := range types.CauseOrder {
		ev.RootCauses = types.Causes{c}
		if r := recommendation(ev); !strings.HasPrefix(r, "Please") && !strings.HasPrefix(r, "On ") {
			t.Errorf("%s: recommendation = %q", c, r)
		}
	}
}

// --- Static ---

func TestStatic(t *testing.T) {
	got, err := Static{}.Generate(context.Background(), Prompt{Offline: "body"})
	if err != nil || got != "body" {
		t.Fatalf("Generate = %q, %v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Static{}).Generate(ctx, Prompt{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Generate err = %v", err)
	}
}

// --- LLM ---

func TestLLM_Generate(t *testing.T) {
	var req chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Team, watch the beef.  "}}]}`)
	}))
	defer srv.Close()

	l := NewLLM(srv.URL, "secret", "llama-3.1-8b-instant", 0.3, time.Second)
	got, err := l.Generate(context.Background(), Prompt{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Team, watch the beef." {
		t.Errorf("Generate = %q", got)
	}
	if req.Model != "llama-3.1-8b-instant" || req.Temperature != 0.3 {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "usr" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestLLM_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`, "HTTP 401: Invalid API Key"},
		{"plain error", http.StatusBadGateway, "upstream down", "HTTP 502: upstream down"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, "empty completion"},
		{"garbage", http.StatusOK, `not json`, "decode response"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewLLM(srv.URL, "k", "m", 0, time.Second).Generate(context.Background(), Prompt{})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLLM_RespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewLLM(srv.URL, "k", "m", 0, time.Minute).Generate(ctx, Prompt{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestFailureText(t *testing.T) {
	got := FailureText(errors.New("narrative: HTTP 429: rate limited"))
	if got != "LLM Error generating chef feedback: narrative: HTTP 429: rate limited" {
		t.Errorf("FailureText = %q", got)
	}
}

// --- New ---

func TestNew(t *testing.T) {
	t.Setenv("TEST_GROQ_KEY", "k")

	if _, ok := New(config.NarrativeConfig{Backend: "static"}).(Static); !ok {
		t.Error("static backend should return Static")
	}
	if _, ok := New(config.NarrativeConfig{Backend: "llm", APIKeyEnv: "UNSET_GROQ_KEY_VAR"}).(Static); !ok {
		t.Error("llm backend without a key should fall back to Static")
	}
	g := New(config.NarrativeConfig{Backend: "llm", APIKeyEnv: "TEST_GROQ_KEY", Endpoint: "http://x", Model: "m"})
	if _, ok := g.(*LLM); !ok {
		t.Errorf("llm backend with a key = %T, want *LLM", g)
	}
}
