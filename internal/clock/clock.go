package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock time so window and TTL arithmetic can be tested.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func New() Clock {
	return SystemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
