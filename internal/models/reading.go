package models

import "time"

// Snapshot is one instantaneous, fully-populated reading of the wearable's
// twelve channels. It carries no timestamp.
type Snapshot struct {
	AccX        float64 `json:"accX"`
	AccY        float64 `json:"accY"`
	AccZ        float64 `json:"accZ"`
	BPM         float64 `json:"bpm"`
	ECG         float64 `json:"ecg"`
	GyroX       float64 `json:"gyroX"`
	GyroY       float64 `json:"gyroY"`
	GyroZ       float64 `json:"gyroZ"`
	LeadMinus   float64 `json:"lead_minus"`
	LeadPlus    float64 `json:"lead_plus"`
	Steps       float64 `json:"steps"`
	Temperature float64 `json:"temperature"`
}

// Reading is a Snapshot stamped with its ingestion time in epoch milliseconds.
// Key is the opaque storage key the store assigned on append; it is empty for
// readings that were never persisted.
type Reading struct {
	Snapshot
	Timestamp int64  `json:"timestamp"`
	Key       string `json:"-"`
}

// NewReading stamps s with t.
func NewReading(s Snapshot, t time.Time) Reading {
	return Reading{Snapshot: s, Timestamp: t.UnixMilli()}
}

// Time returns the reading's timestamp as a time.Time.
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// ChannelNames lists the wire names of the snapshot channels in a fixed order.
// Values returns the channels in the same order.
var ChannelNames = []string{
	"accX", "accY", "accZ",
	"bpm", "ecg",
	"gyroX", "gyroY", "gyroZ",
	"lead_minus", "lead_plus",
	"steps", "temperature",
}

// Values returns the channels ordered as ChannelNames.
func (s Snapshot) Values() []float64 {
	return []float64{
		s.AccX, s.AccY, s.AccZ,
		s.BPM, s.ECG,
		s.GyroX, s.GyroY, s.GyroZ,
		s.LeadMinus, s.LeadPlus,
		s.Steps, s.Temperature,
	}
}

// SnapshotFromValues is the inverse of Values. It panics if len(v) does not
// match len(ChannelNames).
func SnapshotFromValues(v []float64) Snapshot {
	if len(v) != len(ChannelNames) {
		panic("models: wrong number of channel values")
	}
	return Snapshot{
		AccX: v[0], AccY: v[1], AccZ: v[2],
		BPM: v[3], ECG: v[4],
		GyroX: v[5], GyroY: v[6], GyroZ: v[7],
		LeadMinus: v[8], LeadPlus: v[9],
		Steps: v[10], Temperature: v[11],
	}
}
