package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/healnexus/internal/models"
)

// DefaultInterval is the polling cadence used when none is configured.
const DefaultInterval = 3 * time.Second

// SnapshotFetcher returns the live snapshot, or nil when the store has none.
type SnapshotFetcher interface {
	FetchCurrent(ctx context.Context) (*models.Snapshot, error)
}

// Persister records a stamped snapshot. *Recorder implements it.
type Persister interface {
	Record(ctx context.Context, s models.Snapshot, ingestedAtMs int64) error
}

// Sink receives every reading the poller fetched, after it was handed to the
// recorder. Sink errors are logged and otherwise ignored.
type Sink interface {
	Publish(ctx context.Context, r models.Reading) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r models.Reading) error

func (f SinkFunc) Publish(ctx context.Context, r models.Reading) error { return f(ctx, r) }

type State int32

const (
	Idle State = iota
	Fetching
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Recording:
		return "recording"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type PollerOptions struct {
	Interval time.Duration
	// PollImmediately runs a first cycle on Start instead of waiting one interval.
	PollImmediately bool
	// CycleTimeout bounds a whole fetch/record cycle. Zero leaves it to the
	// store client's own request timeout.
	CycleTimeout time.Duration
	Now          func() time.Time
	Sinks        []Sink
	Logger       *slog.Logger
}

// Stats is a point-in-time copy of the poller's counters.
type Stats struct {
	State          string    `json:"state"`
	Ticks          int64     `json:"ticks"`
	DroppedTicks   int64     `json:"dropped_ticks"`
	FetchFailures  int64     `json:"fetch_failures"`
	AbsentFetches  int64     `json:"absent_fetches"`
	Recorded       int64     `json:"recorded"`
	RecordFailures int64     `json:"record_failures"`
	SinkFailures   int64     `json:"sink_failures"`
	LastRecorded   time.Time `json:"last_recorded,omitempty"`
}

// Poller fetches the live snapshot on a fixed cadence and records it. At most
// one cycle runs at a time; a tick that fires while a cycle is in flight is
// dropped.
type Poller struct {
	fetcher   SnapshotFetcher
	persister Persister
	opts      PollerOptions
	log       *slog.Logger

	state atomic.Int32

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	loopWG  sync.WaitGroup
	cycleWG sync.WaitGroup

	ticks          atomic.Int64
	dropped        atomic.Int64
	fetchFailures  atomic.Int64
	absent         atomic.Int64
	recorded       atomic.Int64
	recordFailures atomic.Int64
	sinkFailures   atomic.Int64
	lastRecorded   atomic.Int64
}

func NewPoller(fetcher SnapshotFetcher, persister Persister, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		fetcher:   fetcher,
		persister: persister,
		opts:      opts,
		log:       opts.Logger.With("component", "poller"),
	}
}

// Start begins ticking. Calling Start on a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})

	p.loopWG.Add(1)
	go p.loop(p.stop)
	p.log.Info("poller started", "interval", p.opts.Interval)
}

// Stop cancels future ticks and releases the ticker. A cycle already in
// flight is not interrupted; Stop returns once it has completed.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.loopWG.Wait()
	p.cycleWG.Wait()
	p.log.Info("poller stopped")
}

// State returns the current state of the poll cycle.
func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) Stats() Stats {
	st := Stats{
		State:          p.State().String(),
		Ticks:          p.ticks.Load(),
		DroppedTicks:   p.dropped.Load(),
		FetchFailures:  p.fetchFailures.Load(),
		AbsentFetches:  p.absent.Load(),
		Recorded:       p.recorded.Load(),
		RecordFailures: p.recordFailures.Load(),
		SinkFailures:   p.sinkFailures.Load(),
	}
	if ms := p.lastRecorded.Load(); ms > 0 {
		st.LastRecorded = time.UnixMilli(ms).UTC()
	}
	return st
}

func (p *Poller) loop(stop <-chan struct{}) {
	defer p.loopWG.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	if p.opts.PollImmediately {
		p.tick()
	}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller) tick() {
	p.ticks.Add(1)
	if !p.state.CompareAndSwap(int32(Idle), int32(Fetching)) {
		p.dropped.Add(1)
		p.log.Debug("tick dropped, previous cycle still running", "state", p.State())
		return
	}
	p.cycleWG.Add(1)
	go func() {
		defer p.cycleWG.Done()
		p.cycle()
	}()
}

// cycle runs with its own context so that Stop never interrupts it.
func (p *Poller) cycle() {
	defer p.state.Store(int32(Idle))
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("poll cycle panicked", "panic", r)
		}
	}()

	ctx := context.Background()
	if p.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CycleTimeout)
		defer cancel()
	}

	snap, err := p.fetcher.FetchCurrent(ctx)
	if err != nil {
		p.fetchFailures.Add(1)
		p.log.Warn("failed to fetch current snapshot", "error", err)
		return
	}
	if snap == nil {
		p.absent.Add(1)
		p.log.Debug("no current snapshot in store")
		return
	}

	p.state.Store(int32(Recording))
	now := p.opts.Now()
	reading := models.NewReading(*snap, now)

	if err := p.persister.Record(ctx, *snap, reading.Timestamp); err != nil {
		// History is best-effort: the reading is lost, polling carries on.
		n := p.recordFailures.Add(1)
		p.log.Error("failed to record reading", "timestamp", reading.Timestamp,
			"error", err, "record_failures", n)
	} else {
		p.recorded.Add(1)
		p.lastRecorded.Store(reading.Timestamp)
	}

	for _, s := range p.opts.Sinks {
		if err := s.Publish(ctx, reading); err != nil {
			p.sinkFailures.Add(1)
			p.log.Warn("failed to publish live reading", "error", err)
		}
	}
}
