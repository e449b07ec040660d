// Package query answers current, history and export reads over the stored
// telemetry and serves them over HTTP.
package query

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/healnexus/internal/models"
)

// DefaultHistoryLimit caps the number of readings a history read returns.
const DefaultHistoryLimit = 200

type CurrentSource interface {
	FetchCurrent(ctx context.Context) (*models.Snapshot, error)
}

type HistorySource interface {
	FetchHistory(ctx context.Context) ([]models.Reading, error)
}

// Store is the full read surface of the realtime database client.
type Store interface {
	CurrentSource
	HistorySource
}

type Options struct {
	HistoryLimit int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Engine reads straight from the store on every call. Nothing is cached.
type Engine struct {
	current CurrentSource
	history HistorySource
	limit   int
	now     func() time.Time
	log     *slog.Logger
}

func NewEngine(current CurrentSource, history HistorySource, opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		current: current,
		history: history,
		limit:   opts.HistoryLimit,
		now:     opts.Now,
		log:     opts.Logger.With("component", "query"),
	}
}

// Current returns the live snapshot, or nil when the store has none.
func (e *Engine) Current(ctx context.Context) (*models.Snapshot, error) {
	return e.current.FetchCurrent(ctx)
}

// History returns readings in rng newest first, at most the configured limit.
// When the store holds no history at all, the current snapshot stamped with
// the evaluation time stands in for it.
func (e *Engine) History(ctx context.Context, rng models.TimeRange) ([]models.Reading, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	readings, err := e.history.FetchHistory(ctx)
	if err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		return e.fallback(ctx, rng)
	}

	sortDescending(readings)
	out := filter(readings, rng)
	if len(out) > e.limit {
		out = out[:e.limit]
	}
	e.log.Debug("history read", "stored", len(readings), "returned", len(out))
	return out, nil
}

// Export returns every reading in rng oldest first.
func (e *Engine) Export(ctx context.Context, rng models.TimeRange) ([]models.Reading, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	readings, err := e.history.FetchHistory(ctx)
	if err != nil {
		return nil, err
	}
	sortAscending(readings)
	out := filter(readings, rng)
	e.log.Debug("export read", "stored", len(readings), "returned", len(out))
	return out, nil
}

func (e *Engine) fallback(ctx context.Context, rng models.TimeRange) ([]models.Reading, error) {
	snap, err := e.current.FetchCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return []models.Reading{}, nil
	}
	r := models.NewReading(*snap, e.now())
	if !rng.Contains(r.Timestamp) {
		return []models.Reading{}, nil
	}
	e.log.Debug("history empty, synthesized from current snapshot", "timestamp", r.Timestamp)
	return []models.Reading{r}, nil
}

// Equal timestamps fall back to the storage key, which the store hands out in
// insertion order.
func less(a, b models.Reading) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Key < b.Key
}

func sortAscending(rs []models.Reading) {
	sort.SliceStable(rs, func(i, j int) bool { return less(rs[i], rs[j]) })
}

func sortDescending(rs []models.Reading) {
	sort.SliceStable(rs, func(i, j int) bool { return less(rs[j], rs[i]) })
}

func filter(rs []models.Reading, rng models.TimeRange) []models.Reading {
	out := make([]models.Reading, 0, len(rs))
	for _, r := range rs {
		if rng.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}
