package rules

import (
	"github.com/wasteaudit/wasteaudit/auditor/internal/baseline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Apply runs the full per-event chain against a built baseline: Evaluate,
// Compose, Classify and Summary. Derived fields from a previous run are
// cleared first, so Apply is idempotent.
func Apply(ev *types.WasteEvent, b *baseline.Baseline, r config.RulesConfig) {
	ev.ResetDerived()
	Evaluate(ev, b, r)
	ev.RootCauses = Compose(ev.Flags)
	ev.Status = Classify(ev, r)
	ev.Summary = Summary(ev, b, r)
}

// Evaluate sets ev.WasteRate and ev.Flags. Every rule is evaluated on its
// own; a rule whose operand is absent is false. All comparisons are strict.
func Evaluate(ev *types.WasteEvent, b *baseline.Baseline, r config.RulesConfig) {
	rate := baseline.SafeRate(ev.WastageQty, ev.PlannedQty)
	ev.WasteRate = rate

	var f types.Flags

	if ev.WastageQty.Valid && ev.ExpectedWasteQty.Valid {
		f.Deviation = ev.WastageQty.Value > ev.ExpectedWasteQty.Value*r.ExpectedThreshold
	}
	f.HighRate = b.OverallAvg > 0 && rate > b.OverallAvg*r.RateThreshold
	f.Combined = types.Combine(f.Deviation, f.HighRate)

	f.ExpiredUsed = baseline.Expired(ev)

	if avg, ok := b.StationAvg(ev.Station); ok {
		f.StationInefficiency = avg > b.OverallAvg*r.StationMult
	}
	if avg, ok := b.ShiftAvg(ev.Shift); ok {
		f.ShiftIssue = avg > b.OverallAvg*r.ShiftMult
	}

	f.PeakPressure = ev.PeakHour && b.NonPeakAvg > 0 && rate > b.NonPeakAvg*r.PeakMult

	if t := ev.Temperature; t.Valid {
		f.HeatSpoilage = b.ModerateTempAvg > 0 &&
			t.Value > r.HotTemp &&
			rate > b.ModerateTempAvg*r.HotMult

		f.ColdOverprep = ev.SalesQty.Valid && b.MedianSales.Valid &&
			t.Value <= r.ColdTemp &&
			ev.SalesQty.Value < b.MedianSales.Value &&
			rate > b.OverallAvg*r.ColdMult
	}

	if ev.Supplier != "" {
		f.SupplierQuality = b.QualityRisk(ev.Supplier)
		f.SupplierRotation = b.RotationRisk(ev.Supplier) && f.HighRate
	}

	ev.Flags = f
}

// Compose returns the true root-cause flags in precedence order. An empty
// result renders as "None".
func Compose(f types.Flags) types.Causes {
	var out types.Causes
	for _, c := range types.CauseOrder {
		if f.Cause(c) {
			out = append(out, c)
		}
	}
	return out
}
