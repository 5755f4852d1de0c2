package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/db"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

var feb2025 = Period{Year: 2025, Month: time.February}

// --- Period ---

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		month   string
		want    time.Month
		wantErr bool
	}{
		{"February", time.February, false},
		{"february", time.February, false},
		{"Feb", time.February, false},
		{" 2 ", time.February, false},
		{"12", time.December, false},
		{"13", 0, true},
		{"0", 0, true},
		{"Febr", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.month, func(t *testing.T) {
			p, err := ParsePeriod(2025, tc.month)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && (p.Month != tc.want || p.Year != 2025) {
				t.Errorf("ParsePeriod = %+v, want %s 2025", p, tc.want)
			}
		})
	}
	if _, err := ParsePeriod(0, "February"); err == nil {
		t.Error("year 0 should be rejected")
	}
}

func TestPeriod_Bounds(t *testing.T) {
	if got := feb2025.Start(); !got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", got)
	}
	if got := (Period{Year: 2024, Month: time.December}).End(); !got.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("December End = %v", got)
	}
	if feb2025.String() != "February 2025" {
		t.Errorf("String = %q", feb2025.String())
	}

	tests := []struct {
		name string
		t    types.NullTime
		want bool
	}{
		{"inside", types.Time(time.Date(2025, 2, 14, 18, 30, 0, 0, time.UTC)), true},
		{"last minute", types.Time(time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)), true},
		{"next month", types.Time(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)), false},
		{"other year", types.Time(time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)), false},
		{"absent", types.NullTime{}, false},
	}
	for _, tc := range tests {
		if got := feb2025.Contains(tc.t); got != tc.want {
			t.Errorf("%s: Contains = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	for s, want := range map[string]bool{
		"1": true, "Yes": true, "TRUE": true, "y": true, "1.0": true,
		"0": false, "No": false, "": false, "false": false, "maybe": false,
	} {
		if got := parseFlag(s); got != want {
			t.Errorf("parseFlag(%q) = %v, want %v", s, got, want)
		}
	}
}

// --- JSON ---

const jsonFixture = `[
  {"id": 3, "branch": "LA - Downtown", "ingredient": "Prime Beef", "date": "14-Feb-2025 18:30", "planned_qty": 10, "wastage_qty": "2.5"},
  {"id": 1, "branch": " LA - Downtown ", "ingredient": "Salmon", "date": "2025-02-01", "planned_qty": null},
  {"id": 2, "branch": "NY - Midtown", "ingredient": "Salmon", "date": "2025-02-03"},
  {"id": 4, "branch": "LA - Downtown", "ingredient": "Basil", "date": "2025-03-01"},
  {"id": 5, "branch": "LA - Downtown", "ingredient": "Basil", "date": "not a date"}
]`

func TestJSON_FetchBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(jsonFixture), 0o600); err != nil {
		t.Fatal(err)
	}

	events, err := NewJSON(path).FetchBatch(context.Background(), "LA - Downtown", feb2025)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(events) != 2 || events[0].ID != 1 || events[1].ID != 3 {
		t.Fatalf("events = %+v, want ids [1 3]", events)
	}
	if events[0].PlannedQty.Valid {
		t.Error("null planned qty should be absent")
	}
	if !events[1].WastageQty.Valid || events[1].WastageQty.Value != 2.5 {
		t.Errorf("numeric string wastage qty = %+v", events[1].WastageQty)
	}
}

func TestJSON_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte(`{"not": "an array"}`), 0o600)

	if _, err := NewJSON(filepath.Join(dir, "missing.json")).FetchBatch(context.Background(), "LA", feb2025); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := NewJSON(bad).FetchBatch(context.Background(), "LA", feb2025); err == nil {
		t.Error("non-array document should fail")
	}
}

func TestJSON_MalformedRecordsDoNotAbortBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	doc := `[
  {"id": 1, "branch": "LA - Downtown", "ingredient": "Beef", "date": "2025-02-10", "wastage_cost": 12},
  {"id": 2, "branch": "LA - Downtown", "ingredient": "Salmon", "date": "2025-02-11", "peak_hour": "yes", "wastage_cost": 30},
  {"id": "three", "branch": "LA - Downtown", "ingredient": "Basil", "date": "2025-02-12"},
  {"branch": "LA - Downtown", "ingredient": "Basil", "date": "2025-02-12"},
  42
]`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	events, err := NewJSON(path).FetchBatch(context.Background(), "LA - Downtown", feb2025)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(events) != 2 || events[0].ID != 1 || events[1].ID != 2 {
		t.Fatalf("events = %+v, want ids [1 2]", events)
	}
	salmon := events[1]
	if salmon.PeakHour {
		t.Error("badly typed peak_hour should fall back to false")
	}
	if salmon.Ingredient != "Salmon" || !salmon.Date.Valid || salmon.WastageCost.Value != 30 {
		t.Errorf("well-typed fields of a malformed record should survive: %+v", salmon)
	}
}

// --- XLSX ---

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "waste.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestXLSX_FetchBatch(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"ID", "Date", "Branch", "Branch Manager", "Chef", "Chef Email", "Ingredient", "Kitchen Station",
			"Shift", "Supplier Name", "Peak Hour Flag", "Expiry Date", "Temperature (°C)",
			"Planned Qty", "Wastage Qty", "Expected Waste Qty", "Wastage Cost", "Sales Qty", "Notes"},
		{7, "14-Feb-2025 18:30", "LA - Downtown", "Maria Lopez", "David Kim", "david@example.com", "Prime Beef", "Grill",
			"Night", "SupplierY", "Yes", "12-Feb-2025", 31.5,
			10, 5, 1, 150, "", "ignored"},
		{2, 45702.5, "LA - Downtown", "", "", "", "Salmon", "", "", "", 0, "", "", 8, 1, "", 4.2, 30, ""},
		{3, "2025-02-10", "NY - Midtown", "", "", "", "Salmon", "", "", "", "", "", "", 1, 1, 1, 1, 1, ""},
		{4, "2025-01-31", "LA - Downtown", "", "", "", "Salmon", "", "", "", "", "", "", 1, 1, 1, 1, 1, ""},
		{"", "2025-02-10", "LA - Downtown"},
	})

	events, err := NewXLSX(path, "").FetchBatch(context.Background(), "LA - Downtown", feb2025)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}

	serial := events[0]
	if serial.ID != 2 {
		t.Fatalf("events not ordered by ID: %d first", serial.ID)
	}
	if want := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC); !serial.Date.Valid || !serial.Date.Time.Equal(want) {
		t.Errorf("serial date = %+v, want %v", serial.Date, want)
	}
	if serial.PeakHour || serial.Temperature.Valid || serial.ExpectedWasteQty.Valid {
		t.Errorf("blank cells should be absent: %+v", serial)
	}

	ev := events[1]
	if ev.ID != 7 || ev.Station != "Grill" || ev.Supplier != "SupplierY" || ev.ChefEmail != "david@example.com" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.PeakHour || ev.Temperature.Value != 31.5 || ev.WastageCost.Value != 150 {
		t.Errorf("numeric fields = %+v", ev)
	}
	if ev.SalesQty.Valid {
		t.Error("blank sales qty should be absent")
	}
	if !ev.ExpiryDate.Valid || ev.ExpiryDate.Time.Day() != 12 {
		t.Errorf("expiry = %+v", ev.ExpiryDate)
	}
}

func TestXLSX_SkipsRowsWithInvalidID(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"ID", "Date", "Branch", "Ingredient"},
		{"abc", "2025-02-10", "LA - Downtown", "Beef"},
		{0, "2025-02-10", "LA - Downtown", "Beef"},
		{9, "2025-02-10", "LA - Downtown", "Salmon"},
	})

	events, err := NewXLSX(path, "").FetchBatch(context.Background(), "LA - Downtown", feb2025)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(events) != 1 || events[0].ID != 9 || events[0].Ingredient != "Salmon" {
		t.Fatalf("events = %+v, want only id 9", events)
	}
}

func TestXLSX_MissingIDColumn(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{{"Date", "Branch"}, {"2025-02-10", "LA"}})
	if _, err := NewXLSX(path, "").FetchBatch(context.Background(), "LA", feb2025); err == nil {
		t.Fatal("sheet without an ID column should fail")
	}
}

func TestXLSX_UnknownSheet(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{{"ID"}})
	if _, err := NewXLSX(path, "Nope").FetchBatch(context.Background(), "LA", feb2025); err == nil {
		t.Fatal("unknown sheet should fail")
	}
}

// --- New ---

func TestNew(t *testing.T) {
	ctx := context.Background()
	if s, err := New(ctx, config.SourceConfig{Backend: "json"}, "x.json", nil); err != nil {
		t.Errorf("json: %v", err)
	} else if _, ok := s.(*JSON); !ok {
		t.Errorf("json backend = %T", s)
	}
	if s, err := New(ctx, config.SourceConfig{Backend: "xlsx", Path: "waste.xlsx"}, "", nil); err != nil {
		t.Errorf("xlsx: %v", err)
	} else if x, ok := s.(*XLSX); !ok || x.path != "waste.xlsx" {
		t.Errorf("xlsx backend = %#v", s)
	}
	if _, err := New(ctx, config.SourceConfig{Backend: "json"}, "", nil); err == nil {
		t.Error("json without a path should fail")
	}
	if _, err := New(ctx, config.SourceConfig{Backend: "mysql"}, "", nil); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("unknown backend err = %v", err)
	}
	if _, err := New(ctx, config.SourceConfig{Backend: "postgres", DSNEnv: "WASTEAUDIT_UNSET_DSN"}, "", nil); !errors.Is(err, db.ErrNoDSN) {
		t.Errorf("postgres without DSN err = %v", err)
	}
}

// TestPostgres_FetchBatch runs against a real database when WASTEAUDIT_TEST_DSN is set.
func TestPostgres_FetchBatch(t *testing.T) {
	dsn := os.Getenv("WASTEAUDIT_TEST_DSN")
	if dsn == "" {
		t.Skip("WASTEAUDIT_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	_, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS source_test`)
	if _, err := pool.Exec(ctx, `CREATE TABLE source_test (
		id BIGINT PRIMARY KEY, date TIMESTAMPTZ, branch TEXT NOT NULL, branch_manager TEXT, chef TEXT,
		chef_email TEXT, recipe TEXT, ingredient TEXT, kitchen_station TEXT, shift TEXT, supplier_name TEXT,
		peak_hour_flag BOOLEAN, expiry_date TIMESTAMPTZ, temperature_c DOUBLE PRECISION,
		planned_qty DOUBLE PRECISION, wastage_qty DOUBLE PRECISION, expected_waste_qty DOUBLE PRECISION,
		wastage_cost DOUBLE PRECISION, sales_qty DOUBLE PRECISION)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	defer pool.Exec(ctx, `DROP TABLE source_test`)

	if _, err := pool.Exec(ctx, `INSERT INTO source_test (id, date, branch, ingredient, planned_qty, wastage_qty, peak_hour_flag) VALUES
		(2, '2025-02-14 18:30+00', 'LA', 'Prime Beef', 10, 5, true),
		(1, '2025-02-01 09:00+00', 'LA', 'Salmon', NULL, 1, NULL),
		(3, '2025-03-01 00:00+00', 'LA', 'Basil', 1, 1, false),
		(4, '2025-02-02 00:00+00', 'NY', 'Basil', 1, 1, false)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := NewPostgres(pool, "source_test").FetchBatch(ctx, "LA", feb2025)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(events) != 2 || events[0].ID != 1 || events[1].ID != 2 {
		t.Fatalf("events = %+v, want ids [1 2]", events)
	}
	if events[0].PlannedQty.Valid || events[0].PeakHour {
		t.Errorf("NULL columns should be absent: %+v", events[0])
	}
	if !events[1].PeakHour || events[1].WastageQty.Value != 5 {
		t.Errorf("event 2 = %+v", events[1])
	}
}
