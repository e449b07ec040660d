package rtdb

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/healnexus/internal/models"
)

// FetchCurrent returns the live snapshot, or nil when the store holds none.
// Channels missing from the stored object read as zero; a channel holding a
// non-numeric value fails the whole fetch with a *ValidationError.
func (c *Client) FetchCurrent(ctx context.Context) (*models.Snapshot, error) {
	const op = "fetch current"

	data, err := c.do(ctx, op, http.MethodGet, currentPath, nil)
	if err != nil {
		return nil, err
	}
	if isNull(data) {
		return nil, nil
	}

	var raw models.RawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, validationFromJSON(op, err)
	}
	s := raw.Normalize()
	return &s, nil
}

// PutCurrent replaces the live snapshot. Only the device side writes it.
func (c *Client) PutCurrent(ctx context.Context, s models.Snapshot) error {
	_, err := c.do(ctx, "put current", http.MethodPut, currentPath, s)
	return err
}
