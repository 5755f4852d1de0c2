package narrative

import (
	"fmt"
	"strings"

	"github.com/wasteaudit/wasteaudit/auditor/internal/baseline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/rules"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

const chefSystemPrompt = `You are a professional Head Chef writing a direct, friendly, and actionable feedback message to a station chef about a waste issue. IMPORTANT:
- Output ONLY the main body of the email.
- Do NOT include any greeting lines (no 'Hi', 'Hello', 'Dear', no names).
- Do NOT include any closing or signature (no 'Thanks', 'Regards', no names, roles, or branch names).
- Do NOT include any subject line.
- Start directly with the content of the message.
The body should be brief and end with one clear recommendation sentence.`

const chefTask = `Your task: Act as a friendly, but firm, Head Chef providing direct, user-friendly feedback to a station chef for an escalated waste issue.

Write ONLY the main body of the email in plain text:
- Do NOT include any greeting lines (no 'Hi', 'Hello', 'Dear', names, etc.).
- Do NOT include any closing or signature (no 'Thanks', 'Regards', names, roles, or branch names).
- Do NOT include a subject line.
- Start directly with the content of the message (for example: "Team, we need to talk about our [Ingredient] waste.").

The body should include three parts (but as one short email body):
1. A friendly opening sentence that mentions the ingredient and the issue.
2. A clear, non-technical explanation of the problem, incorporating the facts and quantitative issues. Keep the math simple (e.g., 'we wasted 5 kg when we should have only wasted 1 kg').
3. A single, specific, and friendly recommendation on how to avoid the mistake immediately (e.g., 'Please double-check the FIFO tag every time you pull stock').`

// ChefPrompt builds the feedback prompt for an evaluated, escalated event.
// The fact summary already attached to the event is included for context.
func ChefPrompt(ev *types.WasteEvent, b *baseline.Baseline) Prompt {
	item := ev.Ingredient
	if item == "" {
		item = "this item"
	}

	facts := fmt.Sprintf("Wastage Event: %s on %s. The high-cost item had a waste value of $%.2f.",
		item, rules.FormatDate(ev.Date), ev.WastageCost.Or(0))

	quant := quantitativeIssues(ev, b)
	causes := causeFacts(ev)

	var user strings.Builder
	fmt.Fprintf(&user, "Item: %s.\n\n", item)
	fmt.Fprintf(&user, "Facts: %s\n", facts)
	fmt.Fprintf(&user, "Quantitative Issue: %s\n", strings.Join(quant, " "))
	fmt.Fprintf(&user, "Root Causes: %s\n\n", strings.Join(causes, " "))
	if ev.Summary != "" {
		fmt.Fprintf(&user, "Analysis:\n%s\n\n", ev.Summary)
	}
	user.WriteString(chefTask)

	return Prompt{
		System:  chefSystemPrompt,
		User:    user.String(),
		Offline: offlineBody(ev, item, quant, causes),
	}
}

func quantitativeIssues(ev *types.WasteEvent, b *baseline.Baseline) []string {
	var out []string
	if ev.Flags.Deviation {
		out = append(out, fmt.Sprintf(
			"We wasted %.1f units, which is significantly more than the expected waste of %.1f units.",
			ev.WastageQty.Or(0), ev.ExpectedWasteQty.Or(0)))
	}
	if ev.Flags.HighRate {
		out = append(out, fmt.Sprintf(
			"The waste rate for this item (%.2f%%) is much higher than the standard branch rate (%.2f%%).",
			ev.WasteRate*100, b.OverallAvg*100))
	}
	return out
}

func causeFacts(ev *types.WasteEvent) []string {
	out := make([]string, 0, len(ev.RootCauses))
	for _, c := range ev.RootCauses {
		switch c {
		case types.CauseExpiredUsed:
			out = append(out, fmt.Sprintf("The item was used/wasted after its Expiry Date (%s). This is a major rotation risk.",
				rules.FormatDate(ev.ExpiryDate)))
		case types.CauseStationInefficiency:
			out = append(out, fmt.Sprintf("The '%s' station is showing a historical pattern of high waste.", ev.Station))
		case types.CauseShiftIssue:
			out = append(out, fmt.Sprintf("The waste occurred during the '%s' shift, which has been flagged for consistent waste issues.", ev.Shift))
		case types.CausePeakPressure:
			out = append(out, "The waste happened during a peak hour, well above what we waste outside the rush.")
		case types.CauseHeatSpoilage:
			out = append(out, fmt.Sprintf("It was a hot day (%.0f°C) and the item spoiled faster than on normal days.", ev.Temperature.Or(0)))
		case types.CauseColdOverprep:
			out = append(out, "It was a cold, quiet day with low sales, so too much was prepared.")
		case types.CauseSupplierQuality:
			out = append(out, fmt.Sprintf("Stock from %s has a history of high waste, which points to a quality problem.", ev.Supplier))
		case types.CauseSupplierRotation:
			out = append(out, fmt.Sprintf("Stock from %s keeps getting used past its expiry date.", ev.Supplier))
		}
	}
	return out
}

// offlineBody writes a deterministic feedback body from the same facts.
func offlineBody(ev *types.WasteEvent, item string, quant, causes []string) string {
	parts := []string{fmt.Sprintf("Team, we need to address the waste on our %s.", item)}
	parts = append(parts, quant...)
	if cost := ev.WastageCost.Or(0); cost > 0 {
		parts = append(parts, fmt.Sprintf("That came to a cost of $%.2f.", cost))
	}
	parts = append(parts, causes...)
	parts = append(parts, recommendation(ev))
	return strings.Join(parts, " ")
}

// recommendation picks one action for the highest-precedence root cause.
func recommendation(ev *types.WasteEvent) string {
	if len(ev.RootCauses) == 0 {
		return "Please weigh waste against the expected amount at the end of every shift."
	}
	switch ev.RootCauses[0] {
	case types.CauseExpiredUsed:
		return "Please double-check the expiry date and FIFO tag every time you pull stock."
	case types.CauseStationInefficiency:
		return fmt.Sprintf("Please review portioning and prep quantities at the %s station before each service.", ev.Station)
	case types.CauseShiftIssue:
		return fmt.Sprintf("Please walk the %s shift through prep quantities at the start of service.", ev.Shift)
	case types.CausePeakPressure:
		return "Please prep in smaller batches during the rush so nothing sits too long."
	case types.CauseHeatSpoilage:
		return "On hot days, please keep it chilled until the moment it is needed."
	case types.CauseColdOverprep:
		return "On cold, quiet days, please scale prep down and top up only if sales pick up."
	case types.CauseSupplierQuality:
		return fmt.Sprintf("Please inspect every delivery from %s and reject anything below standard.", ev.Supplier)
	case types.CauseSupplierRotation:
		return fmt.Sprintf("Please rotate stock from %s strictly first-in, first-out.", ev.Supplier)
	default:
		return "Please weigh waste against the expected amount at the end of every shift."
	}
}
