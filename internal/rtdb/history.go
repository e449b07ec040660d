package rtdb

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sort"

	"github.com/healnexus/internal/models"
)

type storedReading struct {
	models.RawSnapshot
	Timestamp *float64 `json:"timestamp"`
}

// FetchHistory returns every persisted reading, each carrying its storage key.
// The result is ordered by key only so repeated calls are stable; callers
// impose their own ordering. Entries without a strictly positive integral
// timestamp are not readings and are skipped.
func (c *Client) FetchHistory(ctx context.Context) ([]models.Reading, error) {
	const op = "fetch history"

	data, err := c.do(ctx, op, http.MethodGet, historyPath, nil)
	if err != nil {
		return nil, err
	}
	if isNull(data) {
		return nil, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, validationFromJSON(op, err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	readings := make([]models.Reading, 0, len(entries))
	skipped := 0
	for _, key := range keys {
		raw := entries[key]
		if isNull(raw) {
			skipped++
			continue
		}
		var sr storedReading
		if err := json.Unmarshal(raw, &sr); err != nil {
			ve := validationFromJSON(op, err).(*ValidationError)
			if ve.Field == "" {
				ve.Field = key
			} else {
				ve.Field = key + "." + ve.Field
			}
			return nil, ve
		}
		ts, ok := timestampMillis(sr.Timestamp)
		if !ok {
			skipped++
			continue
		}
		readings = append(readings, models.Reading{
			Snapshot:  sr.Normalize(),
			Timestamp: ts,
			Key:       key,
		})
	}

	if skipped > 0 {
		c.log.Warn("skipped history entries without a valid timestamp", "skipped", skipped, "total", len(entries))
	}
	return readings, nil
}

func timestampMillis(v *float64) (int64, bool) {
	if v == nil {
		return 0, false
	}
	ts := *v
	if ts <= 0 || ts != math.Trunc(ts) || ts >= math.MaxInt64 {
		return 0, false
	}
	return int64(ts), true
}

type pushResponse struct {
	Name string `json:"name"`
}

// AppendHistory appends r to the history collection and returns the key the
// store generated for it.
func (c *Client) AppendHistory(ctx context.Context, r models.Reading) (string, error) {
	const op = "append history"

	data, err := c.do(ctx, op, http.MethodPost, historyPath, r)
	if err != nil {
		return "", err
	}
	var resp pushResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", validationFromJSON(op, err)
	}
	if resp.Name == "" {
		return "", &ValidationError{Op: op, Field: "name", Reason: "store returned no key"}
	}
	return resp.Name, nil
}
