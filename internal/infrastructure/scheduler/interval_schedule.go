package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires at a fixed cadence, measured from the completion of
// the previous run. The eligibility sweep is its main occupant: progression
// thresholds move on the scale of simulation sessions, so a plain interval
// is enough and no wall-clock alignment is needed. Because the interval
// starts after the run finishes, a slow sweep never overlaps the next one.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a fixed-cadence schedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next fire time following t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String renders the cadence, e.g. "@every 15m0s".
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}
