package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// JSON reads a file holding a JSON array of events.
type JSON struct {
	path string
}

// NewJSON returns a Source reading path on every fetch.
func NewJSON(path string) *JSON { return &JSON{path: path} }

// FetchBatch implements Source. A record with a badly typed field keeps its
// other fields and leaves that one at its zero value; a record without a
// positive id is skipped. Only a file that is not a JSON array fails.
func (j *JSON) FetchBatch(ctx context.Context, branch string, p Period) ([]types.WasteEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil, fmt.Errorf("source: read %q: %w", j.path, err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("source: decode %q: %w", j.path, err)
	}

	events := make([]types.WasteEvent, 0, len(raws))
	for n, raw := range raws {
		ev, bad, err := decodeEvent(raw)
		if err != nil {
			slog.Warn("source: skipping record", "path", j.path, "index", n, "err", err)
			continue
		}
		if len(bad) > 0 {
			slog.Warn("source: ignoring malformed fields", "path", j.path, "id", ev.ID, "fields", bad)
		}
		if ev.ID <= 0 {
			slog.Warn("source: skipping record without id", "path", j.path, "index", n)
			continue
		}
		events = append(events, ev)
	}
	events = filter(events, branch, p)
	sort.SliceStable(events, func(a, b int) bool { return events[a].ID < events[b].ID })
	return events, nil
}

// decodeEvent unmarshals one record. When the record as a whole does not
// decode, each field is decoded on its own and the failing ones are returned.
func decodeEvent(raw json.RawMessage) (types.WasteEvent, []string, error) {
	var ev types.WasteEvent
	if err := json.Unmarshal(raw, &ev); err == nil {
		return ev, nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.WasteEvent{}, nil, fmt.Errorf("not an object: %w", err)
	}
	ev = types.WasteEvent{}
	var bad []string
	for name, value := range fields {
		one, err := json.Marshal(map[string]json.RawMessage{name: value})
		if err != nil {
			bad = append(bad, name)
			continue
		}
		// A type mismatch leaves the field at its zero value.
		if err := json.Unmarshal(one, &ev); err != nil {
			bad = append(bad, name)
		}
	}
	sort.Strings(bad)
	return ev, bad, nil
}
