package rules

import (
	"fmt"
	"strings"

	"github.com/wasteaudit/wasteaudit/auditor/internal/baseline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

const notAvailable = "N/A"

// Summary renders the fact digest of an evaluated event: item, date,
// quantities, the combined flag against the branch average and one sentence
// per root cause in precedence order. NoIssue events get an empty summary.
func Summary(ev *types.WasteEvent, b *baseline.Baseline, r config.RulesConfig) string {
	if ev.Status == types.StatusNoIssue {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Waste Analysis Summary for Item: %s on Date: %s (Waste Rate: %.4f, Wastage Qty: %s, Expected Qty: %s).\n",
		orNA(ev.Ingredient), FormatDate(ev.Date), ev.WasteRate,
		formatQty(ev.WastageQty), formatQty(ev.ExpectedWasteQty))
	fmt.Fprintf(&sb, "The waste instance was categorized as %s (Branch Avg Rate: %.4f).\n",
		ev.Flags.Combined, b.OverallAvg)

	if len(ev.RootCauses) > 0 {
		sb.WriteString("\nDetected Root Causes:\n")
		for _, c := range ev.RootCauses {
			fmt.Fprintf(&sb, "* %s\n", CauseSentence(c, ev, r))
		}
	}
	return strings.TrimSpace(sb.String())
}

// CauseSentence explains one root cause in plain language.
func CauseSentence(c types.Cause, ev *types.WasteEvent, r config.RulesConfig) string {
	switch c {
	case types.CauseExpiredUsed:
		return fmt.Sprintf("The item was used/wasted after its official Expiry Date (%s).", FormatDate(ev.ExpiryDate))
	case types.CauseStationInefficiency:
		return fmt.Sprintf("The Kitchen Station (%s) has a historical average waste rate higher than %gx the branch average.",
			orNA(ev.Station), r.StationMult)
	case types.CauseShiftIssue:
		return fmt.Sprintf("The Shift (%s) is historically associated with a waste rate higher than %gx the branch average.",
			orNA(ev.Shift), r.ShiftMult)
	case types.CausePeakPressure:
		return fmt.Sprintf("The high waste occurred during a Peak Hour, where the waste rate was higher than %gx the non-peak average rate.",
			r.PeakMult)
	case types.CauseHeatSpoilage:
		return fmt.Sprintf("The high waste occurred on a hot day (Temp > %g°C), and the waste rate exceeded %gx the moderate-temperature average rate.",
			r.HotTemp, r.HotMult)
	case types.CauseColdOverprep:
		return fmt.Sprintf("The high waste occurred on a cold day (Temp ≤ %g°C) with low sales, suggesting over-preparation.", r.ColdTemp)
	case types.CauseSupplierQuality:
		return fmt.Sprintf("The Supplier (%s) is historically categorized as a quality risk due to a high average waste rate.",
			orNA(ev.Supplier))
	case types.CauseSupplierRotation:
		return fmt.Sprintf("The Supplier (%s) has a history of expiry issues (rotation risk), and the current row exhibits high waste.",
			orNA(ev.Supplier))
	default:
		return strings.ReplaceAll(string(c), "_", " ")
	}
}

// FormatDate renders a date as YYYY-MM-DD, or "N/A" when absent.
func FormatDate(t types.NullTime) string {
	if !t.Valid {
		return notAvailable
	}
	return t.Time.Format("2006-01-02")
}

func formatQty(v types.NullFloat) string {
	if !v.Valid {
		return notAvailable
	}
	return fmt.Sprintf("%.1f", v.Value)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
