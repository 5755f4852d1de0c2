package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Spreadsheet column headers, matched case-insensitively.
const (
	colID            = "id"
	colDate          = "date"
	colBranch        = "branch"
	colManager       = "branch manager"
	colChef          = "chef"
	colChefEmail     = "chef email"
	colRecipe        = "recipe"
	colIngredient    = "ingredient"
	colStation       = "kitchen station"
	colShift         = "shift"
	colSupplier      = "supplier name"
	colPeak          = "peak hour flag"
	colExpiry        = "expiry date"
	colTemperature   = "temperature (°c)"
	colPlanned       = "planned qty"
	colWastage       = "wastage qty"
	colExpectedWaste = "expected waste qty"
	colCost          = "wastage cost"
	colSales         = "sales qty"
)

// XLSX reads waste logs exported as a spreadsheet. The first row holds the
// column headers; unknown columns are ignored.
type XLSX struct {
	path  string
	sheet string
}

// NewXLSX returns a Source reading sheet of path. An empty sheet selects the
// first one.
func NewXLSX(path, sheet string) *XLSX { return &XLSX{path: path, sheet: sheet} }

// FetchBatch implements Source.
func (x *XLSX) FetchBatch(ctx context.Context, branch string, p Period) ([]types.WasteEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", x.path, err)
	}
	defer f.Close()

	events, err := readSheet(f, x.sheet)
	if err != nil {
		return nil, fmt.Errorf("source: %q: %w", x.path, err)
	}
	events = filter(events, branch, p)
	sort.SliceStable(events, func(a, b int) bool { return events[a].ID < events[b].ID })
	return events, nil
}

func readSheet(f *excelize.File, sheet string) ([]types.WasteEvent, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	// Raw values keep dates as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := index[colID]; !ok {
		return nil, fmt.Errorf("sheet %q has no ID column", sheet)
	}

	events := make([]types.WasteEvent, 0, len(rows)-1)
	for n, row := range rows[1:] {
		cell := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if cell(colID) == "" {
			continue
		}
		id, err := strconv.ParseFloat(cell(colID), 64)
		if err != nil || id < 1 {
			slog.Warn("source: skipping row with invalid ID", "sheet", sheet, "row", n+2, "id", cell(colID))
			continue
		}
		events = append(events, types.WasteEvent{
			ID:               int64(id),
			Branch:           cell(colBranch),
			BranchManager:    cell(colManager),
			Chef:             cell(colChef),
			ChefEmail:        cell(colChefEmail),
			Recipe:           cell(colRecipe),
			Ingredient:       cell(colIngredient),
			Station:          cell(colStation),
			Shift:            cell(colShift),
			Supplier:         cell(colSupplier),
			PeakHour:         parseFlag(cell(colPeak)),
			Date:             parseCellTime(cell(colDate)),
			ExpiryDate:       parseCellTime(cell(colExpiry)),
			Temperature:      types.ParseFloat(cell(colTemperature)),
			PlannedQty:       types.ParseFloat(cell(colPlanned)),
			WastageQty:       types.ParseFloat(cell(colWastage)),
			ExpectedWasteQty: types.ParseFloat(cell(colExpectedWaste)),
			WastageCost:      types.ParseFloat(cell(colCost)),
			SalesQty:         types.ParseFloat(cell(colSales)),
		})
	}
	return events, nil
}

// parseCellTime accepts text timestamps or spreadsheet serial dates.
func parseCellTime(s string) types.NullTime {
	if t := types.ParseTime(s); t.Valid {
		return t
	}
	serial := types.ParseFloat(s)
	if !serial.Valid || serial.Value <= 0 {
		return types.NullTime{}
	}
	t, err := excelize.ExcelDateToTime(serial.Value, false)
	if err != nil {
		return types.NullTime{}
	}
	return types.Time(t)
}
