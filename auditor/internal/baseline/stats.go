package baseline

import (
	"sort"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// SafeRate returns wastage/planned, or 0 when planned is absent or not
// positive. Absent or negative wastage counts as 0, so the result is never
// negative.
func SafeRate(wastage, planned types.NullFloat) float64 {
	if !RateEligible(planned) {
		return 0
	}
	w := wastage.Or(0)
	if w < 0 {
		return 0
	}
	return w / planned.Value
}

// RateEligible reports whether an event with this planned quantity takes
// part in rate averages.
func RateEligible(planned types.NullFloat) bool {
	return planned.Valid && planned.Value > 0
}

// Expired reports whether the event happened on a later calendar day than
// its expiry date. Either date being absent means no violation.
func Expired(ev *types.WasteEvent) bool {
	if !ev.Date.Valid || !ev.ExpiryDate.Valid {
		return false
	}
	return ev.Date.Day().After(ev.ExpiryDate.Day())
}

// mean accumulates a running arithmetic mean.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

// value returns the mean, or 0 when nothing was added.
func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// groupMeans accumulates one mean per non-empty key.
type groupMeans map[string]*mean

func (g groupMeans) add(key string, v float64) {
	if key == "" {
		return
	}
	m, ok := g[key]
	if !ok {
		m = &mean{}
		g[key] = m
	}
	m.add(v)
}

func (g groupMeans) values() map[string]float64 {
	out := make(map[string]float64, len(g))
	for k, m := range g {
		out[k] = m.value()
	}
	return out
}

// median returns the median of vs, averaging the middle pair for even
// lengths. vs is sorted in place.
func median(vs []float64) types.NullFloat {
	if len(vs) == 0 {
		return types.NullFloat{}
	}
	sort.Float64s(vs)
	mid := len(vs) / 2
	if len(vs)%2 == 1 {
		return types.Float(vs[mid])
	}
	return types.Float((vs[mid-1] + vs[mid]) / 2)
}
