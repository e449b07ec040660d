package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnexus/internal/logging"
	"github.com/healnexus/internal/models"
	"github.com/healnexus/internal/rtdb"
	"github.com/healnexus/internal/rtdb/rtdbtest"
)

// mockFetcher returns snap/err on every call and can be made to block until
// released.
type mockFetcher struct {
	mu      sync.Mutex
	snap    *models.Snapshot
	err     error
	block   chan struct{}
	calls   atomic.Int64
	started chan struct{}
}

func (m *mockFetcher) FetchCurrent(ctx context.Context) (*models.Snapshot, error) {
	m.calls.Add(1)
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.err
}

type mockPersister struct {
	mu      sync.Mutex
	err     error
	records []models.Reading
	panics  bool
}

func (m *mockPersister) Record(_ context.Context, s models.Snapshot, ts int64) error {
	if m.panics {
		panic("persister exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, models.Reading{Snapshot: s, Timestamp: ts})
	return m.err
}

func (m *mockPersister) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func newPoller(f SnapshotFetcher, p Persister, interval time.Duration, opts ...func(*PollerOptions)) *Poller {
	o := PollerOptions{Interval: interval, Logger: logging.Discard()}
	for _, fn := range opts {
		fn(&o)
	}
	return NewPoller(f, p, o)
}

func TestPoller_RecordsEachCycle(t *testing.T) {
	fetcher := &mockFetcher{snap: &models.Snapshot{BPM: 72}}
	persister := &mockPersister{}
	clock := time.UnixMilli(1700000000000)
	p := newPoller(fetcher, persister, 10*time.Millisecond, func(o *PollerOptions) {
		o.Now = func() time.Time { return clock }
	})

	p.Start()
	require.Eventually(t, func() bool { return persister.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	persister.mu.Lock()
	first := persister.records[0]
	persister.mu.Unlock()
	assert.Equal(t, int64(1700000000000), first.Timestamp)
	assert.Equal(t, 72.0, first.BPM)

	st := p.Stats()
	assert.GreaterOrEqual(t, st.Recorded, int64(3))
	assert.Equal(t, int64(0), st.RecordFailures)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), st.LastRecorded)
	assert.Equal(t, Idle, p.State())
}

func TestPoller_RecordFailureDoesNotStopTicking(t *testing.T) {
	fetcher := &mockFetcher{snap: &models.Snapshot{BPM: 60}}
	persister := &mockPersister{err: &RecordError{Timestamp: 1, Err: errors.New("append failed")}}
	p := newPoller(fetcher, persister, 10*time.Millisecond)

	p.Start()
	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	st := p.Stats()
	assert.GreaterOrEqual(t, st.RecordFailures, int64(3))
	assert.Zero(t, st.Recorded)
	assert.True(t, st.LastRecorded.IsZero())
}

func TestPoller_PanicInCycleDoesNotStopTicking(t *testing.T) {
	fetcher := &mockFetcher{snap: &models.Snapshot{}}
	p := newPoller(fetcher, &mockPersister{panics: true}, 10*time.Millisecond)

	p.Start()
	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	assert.Equal(t, Idle, p.State())
}

func TestPoller_FetchFailureSkipsRecording(t *testing.T) {
	fetcher := &mockFetcher{err: &rtdb.TransportError{Op: "fetch current", URL: "x", StatusCode: 503}}
	persister := &mockPersister{}
	p := newPoller(fetcher, persister, 10*time.Millisecond)

	p.Start()
	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	assert.Zero(t, persister.count())
	assert.GreaterOrEqual(t, p.Stats().FetchFailures, int64(3))
}

func TestPoller_AbsentSnapshotSkipsRecording(t *testing.T) {
	fetcher := &mockFetcher{}
	persister := &mockPersister{}
	p := newPoller(fetcher, persister, 10*time.Millisecond)

	p.Start()
	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	assert.Zero(t, persister.count())
	assert.GreaterOrEqual(t, p.Stats().AbsentFetches, int64(2))
	assert.Zero(t, p.Stats().FetchFailures)
}

func TestPoller_DropsTicksWhileCycleInFlight(t *testing.T) {
	fetcher := &mockFetcher{
		snap:    &models.Snapshot{BPM: 1},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	persister := &mockPersister{}
	p := newPoller(fetcher, persister, 5*time.Millisecond)

	p.Start()
	<-fetcher.started
	assert.Equal(t, Fetching, p.State())

	require.Eventually(t, func() bool { return p.Stats().DroppedTicks >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), fetcher.calls.Load(), "ticks must be dropped, not queued")

	close(fetcher.block)
	p.Stop()

	assert.Equal(t, int(fetcher.calls.Load()), persister.count())
}

func TestPoller_StopWaitsForInFlightCycle(t *testing.T) {
	fetcher := &mockFetcher{
		snap:    &models.Snapshot{BPM: 99},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	persister := &mockPersister{}
	p := newPoller(fetcher, persister, time.Hour, func(o *PollerOptions) { o.PollImmediately = true })

	p.Start()
	<-fetcher.started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(fetcher.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the cycle completed")
	}
	assert.Equal(t, 1, persister.count(), "in-flight cycle must run to completion")
}

func TestPoller_NoTicksAfterStop(t *testing.T) {
	fetcher := &mockFetcher{snap: &models.Snapshot{}}
	p := newPoller(fetcher, &mockPersister{}, 5*time.Millisecond)

	p.Start()
	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	after := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fetcher.calls.Load())
}

func TestPoller_StopBeforeStartAndTwice(t *testing.T) {
	p := newPoller(&mockFetcher{}, &mockPersister{}, time.Hour)
	p.Stop()
	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
}

func TestPoller_SinksReceiveReadings(t *testing.T) {
	fetcher := &mockFetcher{snap: &models.Snapshot{Temperature: 36.6}}
	var mu sync.Mutex
	var got []models.Reading
	sink := SinkFunc(func(_ context.Context, r models.Reading) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
		return nil
	})
	failing := SinkFunc(func(context.Context, models.Reading) error { return errors.New("broker down") })

	p := newPoller(fetcher, &mockPersister{err: errors.New("history down")}, time.Hour, func(o *PollerOptions) {
		o.PollImmediately = true
		o.Sinks = []Sink{failing, sink}
	})
	p.Start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	assert.Equal(t, 36.6, got[0].Temperature)
	assert.Positive(t, got[0].Timestamp)
	assert.Equal(t, int64(1), p.Stats().SinkFailures)
}

func TestPoller_EndToEndAgainstStore(t *testing.T) {
	srv := rtdbtest.NewServer()
	defer srv.Close()
	client, err := rtdb.New(rtdb.Options{BaseURL: srv.URL, Timeout: time.Second, Logger: logging.Discard()})
	require.NoError(t, err)

	srv.SetCurrentRaw(`{"bpm": 64}`)
	p := newPoller(client, NewRecorder(client, logging.Discard()), 10*time.Millisecond)

	p.Start()
	require.Eventually(t, func() bool { return len(srv.History()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	readings, err := client.FetchHistory(context.Background())
	require.NoError(t, err)
	for _, r := range readings {
		assert.Equal(t, 64.0, r.BPM)
		assert.Positive(t, r.Timestamp)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "fetching", Fetching.String())
	assert.Equal(t, "recording", Recording.String())
	assert.Equal(t, "State(7)", State(7).String())
}
