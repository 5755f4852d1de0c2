package rules

import (
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Classify maps an evaluated event to its terminal status. Decision order:
//
//  1. no combined flag and no root cause          → NoIssue
//  2. cost < CostIgnore or wastage ≤ expected     → Ignore
//  3. cost ≥ CostCritical or more than one cause  → Escalated
//  4. otherwise                                   → Pending
//
// An absent wastage cost counts as 0. The wastage ≤ expected test is false
// when either quantity is absent.
func Classify(ev *types.WasteEvent, r config.RulesConfig) types.Status {
	combined := ev.Flags.Combined
	if (combined == types.CombinedNone || combined == "") && len(ev.RootCauses) == 0 {
		return types.StatusNoIssue
	}

	cost := ev.WastageCost.Or(0)
	withinExpected := ev.WastageQty.Valid && ev.ExpectedWasteQty.Valid &&
		ev.WastageQty.Value <= ev.ExpectedWasteQty.Value
	if cost < r.CostIgnore || withinExpected {
		return types.StatusIgnore
	}

	if cost >= r.CostCritical || len(ev.RootCauses) > 1 {
		return types.StatusEscalated
	}
	return types.StatusPending
}
