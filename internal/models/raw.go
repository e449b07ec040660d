package models

// RawSnapshot is the snapshot as the store holds it: any channel may be
// missing or null.
type RawSnapshot struct {
	AccX        *float64 `json:"accX"`
	AccY        *float64 `json:"accY"`
	AccZ        *float64 `json:"accZ"`
	BPM         *float64 `json:"bpm"`
	ECG         *float64 `json:"ecg"`
	GyroX       *float64 `json:"gyroX"`
	GyroY       *float64 `json:"gyroY"`
	GyroZ       *float64 `json:"gyroZ"`
	LeadMinus   *float64 `json:"lead_minus"`
	LeadPlus    *float64 `json:"lead_plus"`
	Steps       *float64 `json:"steps"`
	Temperature *float64 `json:"temperature"`
}

// Normalize returns a fully-populated Snapshot, mapping every absent channel
// to zero.
func (r RawSnapshot) Normalize() Snapshot {
	return Snapshot{
		AccX:        orZero(r.AccX),
		AccY:        orZero(r.AccY),
		AccZ:        orZero(r.AccZ),
		BPM:         orZero(r.BPM),
		ECG:         orZero(r.ECG),
		GyroX:       orZero(r.GyroX),
		GyroY:       orZero(r.GyroY),
		GyroZ:       orZero(r.GyroZ),
		LeadMinus:   orZero(r.LeadMinus),
		LeadPlus:    orZero(r.LeadPlus),
		Steps:       orZero(r.Steps),
		Temperature: orZero(r.Temperature),
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
