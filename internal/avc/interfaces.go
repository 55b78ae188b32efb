package avc

import (
	"context"

	"avc-ng/internal/nav"
)

// The control loop only ever polls its collaborators. Each implementation
// owns its hardware and background reader and must answer immediately with
// the latest value it has.

// PositionSource reports the last known fix, or ok=false when there is none.
type PositionSource interface {
	Position() (loc nav.Location, ok bool)
}

// HeadingSource reports the last known compass heading in degrees [0,360).
type HeadingSource interface {
	Heading() (deg float64, ok bool)
}

// RangeSource reports the nearest obstacle distance (cm) inside a zone.
type RangeSource interface {
	MinDistance(z Zone) int
}

// Actuator takes a left/right wheel command pair. It is fire-and-forget and
// is called every tick.
type Actuator interface {
	Apply(left, right MotionCommand)
}

// KillSwitch reports the debounced switch state. ok=false means the state is
// not known yet.
type KillSwitch interface {
	State() (run bool, ok bool)
}

// Consumer is a telemetry observer the runner waits on before returning.
// Done is closed once the consumer has seen a terminal mode and shut down.
type Consumer interface {
	Done() <-chan struct{}
}

// Starter is implemented by devices that run a background reader.
// Start must be idempotent.
type Starter interface {
	Start(ctx context.Context) error
}

// Devices groups the collaborators of a run. Ranges and KillSwitch may be
// nil: no ranging means no obstacle is ever seen, and no switch means only
// an operator start opens the start gate.
type Devices struct {
	Position   PositionSource
	Heading    HeadingSource
	Ranges     RangeSource
	Motors     Actuator
	KillSwitch KillSwitch
}
