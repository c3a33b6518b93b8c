package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

// Clock abstracts wall-clock reads and timers so deadline logic can be driven in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	// Deadline fires once the clock reaches t, or at once when t has passed.
	Deadline(t time.Time) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (SystemClock) Deadline(t time.Time) <-chan time.Time {
	return time.After(time.Until(t))
}
