package models

import (
	"fmt"
	"time"
)

// TimeRange is an inclusive [Start, End] filter in epoch milliseconds. A nil
// bound leaves that side unbounded.
type TimeRange struct {
	Start *int64
	End   *int64
}

// Between builds a range bounded on both sides.
func Between(start, end time.Time) TimeRange {
	s, e := start.UnixMilli(), end.UnixMilli()
	return TimeRange{Start: &s, End: &e}
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts int64) bool {
	if r.Start != nil && ts < *r.Start {
		return false
	}
	if r.End != nil && ts > *r.End {
		return false
	}
	return true
}

// Validate rejects ranges whose start is after their end.
func (r TimeRange) Validate() error {
	if r.Start != nil && r.End != nil && *r.Start > *r.End {
		return fmt.Errorf("start %d is after end %d", *r.Start, *r.End)
	}
	return nil
}

// Unbounded reports whether neither side is constrained.
func (r TimeRange) Unbounded() bool {
	return r.Start == nil && r.End == nil
}
