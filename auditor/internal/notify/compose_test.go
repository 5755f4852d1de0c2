package notify

import (
	"errors"
	"testing"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

func escalated(feedback string) *types.WasteEvent {
	return &types.WasteEvent{
		ID:            42,
		Branch:        "LA - Downtown",
		BranchManager: "Gordon",
		Chef:          "David Chang",
		ChefEmail:     "david@example.com",
		Ingredient:    "Prime Beef",
		WastageCost:   types.Float(150),
		RootCauses:    types.Causes{types.CauseExpiredUsed, types.CauseShiftIssue},
		Status:        types.StatusEscalated,
		Feedback:      feedback,
	}
}

var opts = ComposeOptions{Signature: "Waste Intelligence System"}

func TestComposeMessage_FullCleanup(t *testing.T) {
	ev := escalated("Subject: Beef waste on the Grill\n" +
		"Hello Chef David,\n" +
		"\n" +
		"  Team, we need to talk about our Prime Beef waste.  \n" +
		"Please double-check the FIFO tag every time you pull stock.\n" +
		"Best regards,\n" +
		"Gordon\n" +
		"Head Chef")

	m, err := ComposeMessage(ev, opts)
	if err != nil {
		t.Fatalf("ComposeMessage: %v", err)
	}

	if m.Subject != "Beef waste on the Grill" {
		t.Errorf("Subject = %q", m.Subject)
	}
	want := "Hello David Chang,\n\n" +
		"Team, we need to talk about our Prime Beef waste.\n" +
		"Please double-check the FIFO tag every time you pull stock.\n\n" +
		"Thank you,\nGordon\nLA - Downtown\nWaste Intelligence System"
	if m.Body != want {
		t.Errorf("Body =\n%s\nwant\n%s", m.Body, want)
	}
	if m.To != "david@example.com" || m.EventID != 42 || m.Cost != 150 {
		t.Errorf("message fields = %+v", m)
	}
	if m.ID == "" {
		t.Error("message ID should be set")
	}
	if m.Causes.String() != "Expired_Used;Shift_Issue" {
		t.Errorf("Causes = %q", m.Causes)
	}
}

func TestComposeMessage_DefaultSubject(t *testing.T) {
	m, err := ComposeMessage(escalated("Team, the beef went off."), opts)
	if err != nil {
		t.Fatal(err)
	}
	if want := "Waste Feedback Required – Prime Beef (LA - Downtown)"; m.Subject != want {
		t.Errorf("Subject = %q, want %q", m.Subject, want)
	}
}

func TestComposeMessage_Placeholders(t *testing.T) {
	m, err := ComposeMessage(escalated("Thanks [Station Chef's Name], talk soon. [Your Name]"), opts)
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello David Chang,\n\nThanks David, talk soon. Gordon\n\nThank you,\nGordon\nLA - Downtown\nWaste Intelligence System"
	if m.Body != want {
		t.Errorf("Body =\n%s\nwant\n%s", m.Body, want)
	}
}

func TestComposeMessage_Defaults(t *testing.T) {
	ev := escalated("Watch the portions.")
	ev.Chef = ""
	ev.BranchManager = "  "

	m, err := ComposeMessage(ev, ComposeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello Chef,\n\nWatch the portions.\n\nThank you,\nManagement\nLA - Downtown"
	if m.Body != want {
		t.Errorf("Body =\n%s\nwant\n%s", m.Body, want)
	}
}

func TestComposeMessage_GreetingOnlyEarly(t *testing.T) {
	ev := escalated("Line one.\nLine two.\nLine three.\nHello again from the pass.")
	m, err := ComposeMessage(ev, ComposeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello David Chang,\n\nLine one.\nLine two.\nLine three.\nHello again from the pass.\n\nThank you,\nGordon\nLA - Downtown"
	if m.Body != want {
		t.Errorf("Body =\n%s\nwant\n%s", m.Body, want)
	}
}

func TestComposeMessage_Recipient(t *testing.T) {
	tests := []struct {
		name      string
		chefEmail string
		opts      ComposeOptions
		wantTo    string
		wantErr   bool
	}{
		{"event email", "david@example.com", ComposeOptions{}, "david@example.com", false},
		{"override wins", "david@example.com", ComposeOptions{Recipient: "sous@example.com"}, "sous@example.com", false},
		{"default fallback", "", ComposeOptions{DefaultRecipient: "ops@example.com"}, "ops@example.com", false},
		{"missing", "", ComposeOptions{}, "", true},
		{"no at sign", "david.example.com", ComposeOptions{}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := escalated("Body.")
			ev.ChefEmail = tc.chefEmail
			m, err := ComposeMessage(ev, tc.opts)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRecipient) {
					t.Fatalf("err = %v, want ErrInvalidRecipient", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if m.To != tc.wantTo {
				t.Errorf("To = %q, want %q", m.To, tc.wantTo)
			}
		})
	}
}
