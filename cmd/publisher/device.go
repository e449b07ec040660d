package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/healnexus/internal/models"
)

type snapshotWriter interface {
	PutCurrent(ctx context.Context, s models.Snapshot) error
}

// parseLine reads one serial line of twelve comma separated values in
// models.ChannelNames order.
func parseLine(line string) (models.Snapshot, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != len(models.ChannelNames) {
		return models.Snapshot{}, fmt.Errorf("expected %d fields, got %d", len(models.ChannelNames), len(parts))
	}
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("field %s: %w", models.ChannelNames[i], err)
		}
		values[i] = v
	}
	return models.SnapshotFromValues(values), nil
}

// simulator produces plausible wearable readings.
type simulator struct {
	rng   *rand.Rand
	steps float64
	n     int
}

func newSimulator(seed int64) *simulator {
	return &simulator{rng: rand.New(rand.NewSource(seed))}
}

func (s *simulator) next() models.Snapshot {
	s.n++
	if s.rng.Intn(3) == 0 {
		s.steps++
	}
	phase := float64(s.n) / 4
	return models.Snapshot{
		AccX:        s.rng.NormFloat64() * 0.05,
		AccY:        s.rng.NormFloat64() * 0.05,
		AccZ:        1 + s.rng.NormFloat64()*0.05,
		BPM:         math.Round(72 + 6*math.Sin(phase) + s.rng.NormFloat64()*2),
		ECG:         512 + 300*math.Sin(phase*7),
		GyroX:       s.rng.NormFloat64(),
		GyroY:       s.rng.NormFloat64(),
		GyroZ:       s.rng.NormFloat64(),
		LeadMinus:   0,
		LeadPlus:    0,
		Steps:       s.steps,
		Temperature: math.Round((36.6+s.rng.NormFloat64()*0.1)*10) / 10,
	}
}

// push writes s as the current snapshot, bounded by timeout.
func push(ctx context.Context, w snapshotWriter, s models.Snapshot, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := w.PutCurrent(ctx, s); err != nil {
		logger.Warn("failed to publish snapshot", "error", err)
		return
	}
	logger.Debug("published snapshot", "bpm", s.BPM, "temperature", s.Temperature)
}

// simulate publishes a simulated snapshot every interval until ctx is done.
func simulate(ctx context.Context, w snapshotWriter, interval, timeout time.Duration, logger *slog.Logger) {
	sim := newSimulator(time.Now().UnixNano())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		push(ctx, w, sim.next(), timeout, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
