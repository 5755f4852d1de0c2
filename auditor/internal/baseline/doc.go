// Package baseline computes the per-branch statistical reference that the
// rule evaluator compares every event against.
//
// baseline.go provides Build(events, rules), a pure function over one branch
// batch: overall, per-station, per-shift, non-peak and moderate-temperature
// mean waste rates, the median sales quantity, and the supplier quality-risk
// and rotation-risk sets. The returned *Baseline exposes lookups only; its
// maps are never handed out, so it is safe to share across goroutines.
//
// stats.go holds the numeric utilities shared with the rules package:
// SafeRate (0 when planned ≤ 0 or absent), RateEligible, Expired (calendar
// day comparison, absent dates never violate), running means and the median.
package baseline
