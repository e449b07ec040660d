package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnexus/internal/logging"
	"github.com/healnexus/internal/models"
)

type fakeStore struct {
	current    *models.Snapshot
	currentErr error
	history    []models.Reading
	historyErr error
}

func (f *fakeStore) FetchCurrent(context.Context) (*models.Snapshot, error) {
	return f.current, f.currentErr
}

// FetchHistory hands out a fresh copy so callers may sort in place.
func (f *fakeStore) FetchHistory(context.Context) ([]models.Reading, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]models.Reading, len(f.history))
	copy(out, f.history)
	return out, nil
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newEngine(store *fakeStore, opts ...func(*Options)) *Engine {
	o := Options{Now: func() time.Time { return fixedNow }, Logger: logging.Discard()}
	for _, fn := range opts {
		fn(&o)
	}
	return NewEngine(store, store, o)
}

func reading(key string, ts int64, bpm float64) models.Reading {
	return models.Reading{Snapshot: models.Snapshot{BPM: bpm}, Timestamp: ts, Key: key}
}

func timestamps(rs []models.Reading) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.Timestamp
	}
	return out
}

func ptr(v int64) *int64 { return &v }

func threeReadings() *fakeStore {
	return &fakeStore{history: []models.Reading{
		reading("-a", 100, 60),
		reading("-b", 300, 62),
		reading("-c", 200, 61),
	}}
}

func TestHistory_NewestFirst(t *testing.T) {
	got, err := newEngine(threeReadings()).History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200, 100}, timestamps(got))
	assert.Equal(t, 62.0, got[0].BPM)
	assert.Equal(t, 60.0, got[2].BPM)
}

func TestExport_OldestFirst(t *testing.T) {
	got, err := newEngine(threeReadings()).Export(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, timestamps(got))
}

func TestRangeIsInclusive(t *testing.T) {
	e := newEngine(threeReadings())
	rng := models.TimeRange{Start: ptr(100), End: ptr(200)}

	hist, err := e.History(context.Background(), rng)
	require.NoError(t, err)
	assert.Equal(t, []int64{200, 100}, timestamps(hist))

	exp, err := e.Export(context.Background(), rng)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, timestamps(exp))
}

func TestRangeSingleBound(t *testing.T) {
	e := newEngine(threeReadings())

	got, err := e.Export(context.Background(), models.TimeRange{Start: ptr(200)})
	require.NoError(t, err)
	assert.Equal(t, []int64{200, 300}, timestamps(got))

	got, err = e.Export(context.Background(), models.TimeRange{End: ptr(150)})
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, timestamps(got))
}

func TestRangeWithNoMatches(t *testing.T) {
	e := newEngine(threeReadings())
	rng := models.TimeRange{Start: ptr(400), End: ptr(500)}

	hist, err := e.History(context.Background(), rng)
	require.NoError(t, err)
	assert.Empty(t, hist)

	exp, err := e.Export(context.Background(), rng)
	require.NoError(t, err)
	assert.Empty(t, exp)
}

func TestInvertedRangeIsRejected(t *testing.T) {
	e := newEngine(threeReadings())
	rng := models.TimeRange{Start: ptr(300), End: ptr(100)}

	_, err := e.History(context.Background(), rng)
	assert.Error(t, err)
	_, err = e.Export(context.Background(), rng)
	assert.Error(t, err)
}

func TestHistory_CappedExportIsNot(t *testing.T) {
	store := &fakeStore{}
	for i := 1; i <= 250; i++ {
		store.history = append(store.history, reading(fmt.Sprintf("-%04d", i), int64(i), 0))
	}
	e := newEngine(store)

	hist, err := e.History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	require.Len(t, hist, DefaultHistoryLimit)
	assert.Equal(t, int64(250), hist[0].Timestamp)
	assert.Equal(t, int64(51), hist[len(hist)-1].Timestamp)

	exp, err := e.Export(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, exp, 250)
}

func TestHistory_CustomLimit(t *testing.T) {
	e := newEngine(threeReadings(), func(o *Options) { o.HistoryLimit = 2 })
	got, err := e.History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200}, timestamps(got))
}

func TestHistory_FallbackToCurrent(t *testing.T) {
	store := &fakeStore{current: &models.Snapshot{BPM: 70}}
	got, err := newEngine(store).History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 70.0, got[0].BPM)
	assert.Equal(t, fixedNow.UnixMilli(), got[0].Timestamp)
}

func TestHistory_FallbackOutsideRange(t *testing.T) {
	store := &fakeStore{current: &models.Snapshot{BPM: 70}}
	got, err := newEngine(store).History(context.Background(), models.TimeRange{End: ptr(1)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_NoHistoryNoCurrent(t *testing.T) {
	got, err := newEngine(&fakeStore{}).History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExport_NeverSynthesizes(t *testing.T) {
	store := &fakeStore{current: &models.Snapshot{BPM: 70}}
	got, err := newEngine(store).Export(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_NoFallbackWhenRangeExcludesStoredReadings(t *testing.T) {
	store := threeReadings()
	store.current = &models.Snapshot{BPM: 99}
	got, err := newEngine(store).History(context.Background(), models.TimeRange{Start: ptr(1000)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTiesOrderedByKey(t *testing.T) {
	store := &fakeStore{history: []models.Reading{
		reading("-b", 100, 2),
		reading("-c", 100, 3),
		reading("-a", 100, 1),
	}}
	e := newEngine(store)

	exp, err := e.Export(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []string{"-a", "-b", "-c"}, []string{exp[0].Key, exp[1].Key, exp[2].Key})

	hist, err := e.History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "-b", "-a"}, []string{hist[0].Key, hist[1].Key, hist[2].Key})
}

func TestReadsAreIdempotent(t *testing.T) {
	e := newEngine(threeReadings())
	first, err := e.History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	second, err := e.History(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("store down")
	e := newEngine(&fakeStore{historyErr: boom, currentErr: boom})

	_, err := e.Current(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = e.History(context.Background(), models.TimeRange{})
	assert.ErrorIs(t, err, boom)
	_, err = e.Export(context.Background(), models.TimeRange{})
	assert.ErrorIs(t, err, boom)
}

func TestHistory_FallbackPropagatesCurrentError(t *testing.T) {
	boom := errors.New("store down")
	_, err := newEngine(&fakeStore{currentErr: boom}).History(context.Background(), models.TimeRange{})
	assert.ErrorIs(t, err, boom)
}

func TestCurrent(t *testing.T) {
	snap := &models.Snapshot{BPM: 75, Temperature: 36.6}
	got, err := newEngine(&fakeStore{current: snap}).Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	got, err = newEngine(&fakeStore{}).Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
