package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// ErrInvalidRecipient is returned when no usable email address is available.
var ErrInvalidRecipient = errors.New("notify: missing or invalid chef email")

// ComposeOptions fills the parts of a chef email that do not come from the event.
type ComposeOptions struct {
	// Recipient overrides the event's chef email when set.
	Recipient string
	// DefaultRecipient is used when neither Recipient nor the event has one.
	DefaultRecipient string
	// Signature is the last line of the email.
	Signature string
}

var greetings = []string{"hi", "hello", "dear"}

var closers = map[string]bool{
	"best,":         true,
	"best regards,": true,
	"regards,":      true,
	"thanks,":       true,
	"thank you,":    true,
}

// ComposeMessage turns an escalated event's feedback text into a chef
// email. A leading "Subject:" line becomes the subject; greetings in the
// first three lines and everything from the first sign-off line are dropped,
// and the body is wrapped with our own greeting and signature.
func ComposeMessage(ev *types.WasteEvent, opts ComposeOptions) (Message, error) {
	to := firstNonEmpty(opts.Recipient, ev.ChefEmail, opts.DefaultRecipient)
	if !strings.Contains(to, "@") {
		return Message{}, ErrInvalidRecipient
	}

	chef := firstNonEmpty(strings.TrimSpace(ev.Chef), "Chef")
	manager := firstNonEmpty(strings.TrimSpace(ev.BranchManager), "Management")

	lines := strings.Split(strings.TrimSpace(ev.Feedback), "\n")
	subject := ""
	if first := strings.TrimSpace(lines[0]); strings.HasPrefix(strings.ToLower(first), "subject:") {
		subject = strings.TrimSpace(first[len("subject:"):])
		lines = lines[1:]
	}
	if subject == "" {
		subject = fmt.Sprintf("Waste Feedback Required – %s (%s)", firstNonEmpty(ev.Ingredient, "Item"), ev.Branch)
	}

	body := cleanBody(lines, strings.Fields(chef)[0], manager)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello %s,\n\n", chef)
	if body != "" {
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Thank you,\n%s\n%s", manager, ev.Branch)
	if opts.Signature != "" {
		sb.WriteString("\n" + opts.Signature)
	}

	return Message{
		ID:         uuid.NewString(),
		EventID:    ev.ID,
		To:         to,
		Subject:    subject,
		Body:       sb.String(),
		Branch:     ev.Branch,
		Ingredient: ev.Ingredient,
		Causes:     ev.RootCauses,
		Cost:       ev.WastageCost.Or(0),
	}, nil
}

func cleanBody(lines []string, chefFirst, manager string) string {
	var kept []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		l = strings.ReplaceAll(l, "[Station Chef's Name]", chefFirst)
		l = strings.ReplaceAll(l, "[Your Name]", manager)
		kept = append(kept, l)
	}

	out := kept[:0:0]
	for i, l := range kept {
		if i <= 2 && isGreeting(l) {
			continue
		}
		if closers[strings.ToLower(l)] {
			break
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func isGreeting(line string) bool {
	lower := strings.ToLower(line)
	for _, g := range greetings {
		if lower == g || strings.HasPrefix(lower, g+" ") {
			return true
		}
	}
	return false
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
