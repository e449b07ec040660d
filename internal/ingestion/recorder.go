package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/healnexus/internal/models"
)

// HistoryAppender durably appends one reading and reports the key the store
// chose for it.
type HistoryAppender interface {
	AppendHistory(ctx context.Context, r models.Reading) (string, error)
}

// RecordError reports a reading that could not be appended to history.
type RecordError struct {
	Timestamp int64
	Err       error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record reading at %d: %v", e.Timestamp, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Recorder stamps snapshots and appends them to the store's history.
type Recorder struct {
	store HistoryAppender
	log   *slog.Logger
}

func NewRecorder(store HistoryAppender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, log: logger.With("component", "recorder")}
}

// Record appends s stamped with ingestedAtMs. Any failure is returned as a
// *RecordError.
func (r *Recorder) Record(ctx context.Context, s models.Snapshot, ingestedAtMs int64) error {
	if ingestedAtMs <= 0 {
		return &RecordError{Timestamp: ingestedAtMs, Err: errors.New("timestamp must be positive")}
	}
	reading := models.Reading{Snapshot: s, Timestamp: ingestedAtMs}
	key, err := r.store.AppendHistory(ctx, reading)
	if err != nil {
		return &RecordError{Timestamp: ingestedAtMs, Err: err}
	}
	r.log.Debug("reading recorded", "key", key, "timestamp", ingestedAtMs, "bpm", s.BPM)
	return nil
}
