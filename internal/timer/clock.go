package timer

import "time"

// Clock is the session's time source. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// MinDurationHours is the smallest duration ever written for a stopped
// context (36 seconds).
const MinDurationHours = 0.01

// DurationHours converts a wall-clock span to billable hours, applying the
// MinDurationHours floor.
func DurationHours(d time.Duration) float64 {
	h := d.Hours()
	if h < MinDurationHours {
		return MinDurationHours
	}
	return h
}
