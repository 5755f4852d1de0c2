package types

import (
	"strings"
)

// FeedbackNotApplicable is stored as feedback for every event that is not escalated.
const FeedbackNotApplicable = "NotApplicable"

// CombinedFlag summarises the two primary waste detectors.
type CombinedFlag string

const (
	CombinedBoth      CombinedFlag = "Both"
	CombinedDeviation CombinedFlag = "Deviation"
	CombinedHighRate  CombinedFlag = "HighRate"
	CombinedNone      CombinedFlag = "None"
)

// Combine folds the deviation and high-rate detectors into a CombinedFlag.
func Combine(deviation, highRate bool) CombinedFlag {
	switch {
	case deviation && highRate:
		return CombinedBoth
	case deviation:
		return CombinedDeviation
	case highRate:
		return CombinedHighRate
	default:
		return CombinedNone
	}
}

// Cause is the code of one root-cause diagnostic.
type Cause string

const (
	CauseExpiredUsed         Cause = "Expired_Used"
	CauseStationInefficiency Cause = "Station_Inefficiency"
	CauseShiftIssue          Cause = "Shift_Issue"
	CausePeakPressure        Cause = "Peak_Pressure"
	CauseHeatSpoilage        Cause = "Heat_Spoilage"
	CauseColdOverprep        Cause = "Cold_Overprep"
	CauseSupplierQuality     Cause = "Supplier_Quality"
	CauseSupplierRotation    Cause = "Supplier_Rotation"
)

// CauseOrder is the fixed precedence in which root causes are reported.
var CauseOrder = []Cause{
	CauseExpiredUsed,
	CauseStationInefficiency,
	CauseShiftIssue,
	CausePeakPressure,
	CauseHeatSpoilage,
	CauseColdOverprep,
	CauseSupplierQuality,
	CauseSupplierRotation,
}

// NoCauses is the sentinel rendering of an empty root-cause list.
const NoCauses = "None"

// Causes is an ordered root-cause list.
type Causes []Cause

// String joins the causes with ";" or returns "None" when empty.
func (c Causes) String() string {
	if len(c) == 0 {
		return NoCauses
	}
	parts := make([]string, len(c))
	for i, cause := range c {
		parts[i] = string(cause)
	}
	return strings.Join(parts, ";")
}

// Has reports whether cause is in the list.
func (c Causes) Has(cause Cause) bool {
	for _, x := range c {
		if x == cause {
			return true
		}
	}
	return false
}

func (c Causes) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Causes) UnmarshalText(b []byte) error {
	*c = ParseCauses(string(b))
	return nil
}

// ParseCauses is the inverse of Causes.String. Unknown codes are kept as-is.
func ParseCauses(s string) Causes {
	s = strings.TrimSpace(s)
	if s == "" || s == NoCauses {
		return nil
	}
	var out Causes
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Cause(p))
		}
	}
	return out
}

// Flags holds every diagnostic derived for one event.
type Flags struct {
	Deviation bool         `json:"deviation"`
	HighRate  bool         `json:"high_rate"`
	Combined  CombinedFlag `json:"combined"`

	ExpiredUsed         bool `json:"expired_used"`
	StationInefficiency bool `json:"station_inefficiency"`
	ShiftIssue          bool `json:"shift_issue"`
	PeakPressure        bool `json:"peak_pressure"`
	HeatSpoilage        bool `json:"heat_spoilage"`
	ColdOverprep        bool `json:"cold_overprep"`
	SupplierQuality     bool `json:"supplier_quality"`
	SupplierRotation    bool `json:"supplier_rotation"`
}

// Cause reports the root-cause flag matching c.
func (f Flags) Cause(c Cause) bool {
	switch c {
	case CauseExpiredUsed:
		return f.ExpiredUsed
	case CauseStationInefficiency:
		return f.StationInefficiency
	case CauseShiftIssue:
		return f.ShiftIssue
	case CausePeakPressure:
		return f.PeakPressure
	case CauseHeatSpoilage:
		return f.HeatSpoilage
	case CauseColdOverprep:
		return f.ColdOverprep
	case CauseSupplierQuality:
		return f.SupplierQuality
	case CauseSupplierRotation:
		return f.SupplierRotation
	default:
		return false
	}
}

// WasteEvent is one recorded wastage occurrence. The pipeline fills the
// derived block in place.
type WasteEvent struct {
	ID            int64  `json:"id"`
	Branch        string `json:"branch"`
	BranchManager string `json:"branch_manager,omitempty"`
	Chef          string `json:"chef,omitempty"`
	ChefEmail     string `json:"chef_email,omitempty"`
	Recipe        string `json:"recipe,omitempty"`
	Ingredient    string `json:"ingredient"`
	Station       string `json:"kitchen_station,omitempty"`
	Shift         string `json:"shift,omitempty"`
	Supplier      string `json:"supplier,omitempty"`
	PeakHour      bool   `json:"peak_hour"`

	Date       NullTime `json:"date"`
	ExpiryDate NullTime `json:"expiry_date"`

	Temperature      NullFloat `json:"temperature_c"`
	PlannedQty       NullFloat `json:"planned_qty"`
	WastageQty       NullFloat `json:"wastage_qty"`
	ExpectedWasteQty NullFloat `json:"expected_waste_qty"`
	WastageCost      NullFloat `json:"wastage_cost"`
	SalesQty         NullFloat `json:"sales_qty"`

	// Derived by the pipeline.
	WasteRate  float64 `json:"waste_rate"`
	Flags      Flags   `json:"flags"`
	RootCauses Causes  `json:"root_causes"`
	Status     Status  `json:"status"`
	Summary    string  `json:"summary,omitempty"`
	Feedback   string  `json:"feedback"`

	// Collaborator failures, captured per event.
	FeedbackError string `json:"feedback_error,omitempty"`
	NotifyError   string `json:"notify_error,omitempty"`
	PersistError  string `json:"persist_error,omitempty"`
}

// Normalize trims identifying strings so that blank dimensions are treated
// as absent by grouping code.
func (e *WasteEvent) Normalize() {
	e.Branch = strings.TrimSpace(e.Branch)
	e.Station = strings.TrimSpace(e.Station)
	e.Shift = strings.TrimSpace(e.Shift)
	e.Supplier = strings.TrimSpace(e.Supplier)
	e.Ingredient = strings.TrimSpace(e.Ingredient)
	e.ChefEmail = strings.TrimSpace(e.ChefEmail)
}

// ResetDerived clears every derived field so the event can be re-evaluated.
func (e *WasteEvent) ResetDerived() {
	e.WasteRate = 0
	e.Flags = Flags{Combined: CombinedNone}
	e.RootCauses = nil
	e.Status = ""
	e.Summary = ""
	e.Feedback = ""
	e.FeedbackError = ""
	e.NotifyError = ""
	e.PersistError = ""
}
