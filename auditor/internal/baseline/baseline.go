package baseline

import (
	"sort"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Baseline is the statistical reference for one branch batch. It is built
// once by Build and never modified afterwards, so a *Baseline may be shared
// by any number of concurrent evaluations.
type Baseline struct {
	// OverallAvg is the mean waste rate over rate-eligible events.
	OverallAvg float64
	// NonPeakAvg is the mean rate over rate-eligible events outside peak hours.
	NonPeakAvg float64
	// ModerateTempAvg is the mean rate over rate-eligible events at or below the hot threshold.
	ModerateTempAvg float64
	// MedianSales is the median sales quantity over events that report one.
	MedianSales types.NullFloat

	// Events and RateEligible count the batch and its rate-eligible subset.
	Events       int
	RateEligible int

	stationAvg   map[string]float64
	shiftAvg     map[string]float64
	qualityRisk  map[string]struct{}
	rotationRisk map[string]struct{}
}

// Build computes the baseline for a batch of events belonging to one branch.
// An empty batch yields zero averages, empty lookups and an absent median.
func Build(events []types.WasteEvent, rules config.RulesConfig) *Baseline {
	b := &Baseline{Events: len(events)}

	var overall, nonPeak, moderate mean
	stations := groupMeans{}
	shifts := groupMeans{}
	suppliers := groupMeans{}

	type expiryTally struct{ violations, total int }
	expiry := map[string]*expiryTally{}

	var sales []float64

	for i := range events {
		ev := &events[i]

		if ev.SalesQty.Valid {
			sales = append(sales, ev.SalesQty.Value)
		}

		if ev.Supplier != "" {
			tally, ok := expiry[ev.Supplier]
			if !ok {
				tally = &expiryTally{}
				expiry[ev.Supplier] = tally
			}
			tally.total++
			if Expired(ev) {
				tally.violations++
			}
		}

		if !RateEligible(ev.PlannedQty) {
			continue
		}
		rate := SafeRate(ev.WastageQty, ev.PlannedQty)
		b.RateEligible++
		overall.add(rate)
		stations.add(ev.Station, rate)
		shifts.add(ev.Shift, rate)
		suppliers.add(ev.Supplier, rate)
		if !ev.PeakHour {
			nonPeak.add(rate)
		}
		if ev.Temperature.Valid && ev.Temperature.Value <= rules.HotTemp {
			moderate.add(rate)
		}
	}

	b.OverallAvg = overall.value()
	b.NonPeakAvg = nonPeak.value()
	b.ModerateTempAvg = moderate.value()
	b.MedianSales = median(sales)
	b.stationAvg = stations.values()
	b.shiftAvg = shifts.values()

	b.qualityRisk = make(map[string]struct{})
	limit := b.OverallAvg * rules.SupplierMult
	for name, avg := range suppliers.values() {
		if avg > limit {
			b.qualityRisk[name] = struct{}{}
		}
	}

	b.rotationRisk = make(map[string]struct{})
	for name, tally := range expiry {
		share := float64(tally.violations) / float64(tally.total)
		if tally.violations >= rules.RepeatedExpiryCount || share > rules.RotationShare {
			b.rotationRisk[name] = struct{}{}
		}
	}

	return b
}

// StationAvg returns the mean rate of a kitchen station and whether the
// station appeared among the batch's rate-eligible events.
func (b *Baseline) StationAvg(station string) (float64, bool) {
	v, ok := b.stationAvg[station]
	return v, ok
}

// ShiftAvg returns the mean rate of a shift and whether it appeared in the batch.
func (b *Baseline) ShiftAvg(shift string) (float64, bool) {
	v, ok := b.shiftAvg[shift]
	return v, ok
}

// QualityRisk reports whether supplier is in the quality-risk set.
func (b *Baseline) QualityRisk(supplier string) bool {
	_, ok := b.qualityRisk[supplier]
	return ok
}

// RotationRisk reports whether supplier is in the rotation-risk set.
func (b *Baseline) RotationRisk(supplier string) bool {
	_, ok := b.rotationRisk[supplier]
	return ok
}

// View is a copy of a Baseline suitable for JSON output.
type View struct {
	OverallAvg      float64            `json:"overall_avg"`
	NonPeakAvg      float64            `json:"non_peak_avg"`
	ModerateTempAvg float64            `json:"moderate_temp_avg"`
	MedianSales     types.NullFloat    `json:"median_sales"`
	Events          int                `json:"events"`
	RateEligible    int                `json:"rate_eligible"`
	StationAvg      map[string]float64 `json:"station_avg"`
	ShiftAvg        map[string]float64 `json:"shift_avg"`
	QualityRisk     []string           `json:"quality_risk_suppliers"`
	RotationRisk    []string           `json:"rotation_risk_suppliers"`
}

// View returns a detached copy of b. Supplier sets are sorted.
func (b *Baseline) View() View {
	return View{
		OverallAvg:      b.OverallAvg,
		NonPeakAvg:      b.NonPeakAvg,
		ModerateTempAvg: b.ModerateTempAvg,
		MedianSales:     b.MedianSales,
		Events:          b.Events,
		RateEligible:    b.RateEligible,
		StationAvg:      copyMap(b.stationAvg),
		ShiftAvg:        copyMap(b.shiftAvg),
		QualityRisk:     sortedKeys(b.qualityRisk),
		RotationRisk:    sortedKeys(b.rotationRisk),
	}
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
