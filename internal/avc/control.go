package avc

import (
	"context"
	"log"
	"time"

	"avc-ng/internal/nav"
)

// Outcome is how AdvanceToWaypoint ended.
type Outcome uint8

const (
	OutcomeReached Outcome = iota
	OutcomeAborted
)

func (o Outcome) String() string {
	if o == OutcomeReached {
		return "reached"
	}
	return "aborted"
}

// ControlLoop owns the working NavigationState and drives the vehicle one
// waypoint at a time.
type ControlLoop struct {
	settings Settings
	shared   *Shared
	dev      Devices

	sleep func(time.Duration)
	now   func() time.Time

	state NavigationState
}

func NewControlLoop(settings Settings, shared *Shared, dev Devices) *ControlLoop {
	return &ControlLoop{
		settings: settings.withDefaults(),
		shared:   shared,
		dev:      dev,
		sleep:    time.Sleep,
		now:      time.Now,
		state:    NewNavigationState(),
	}
}

// State returns a copy of the working state.
func (c *ControlLoop) State() NavigationState { return c.state.Clone() }

// AdvanceToWaypoint ticks until the vehicle is inside the arrival box of wp
// or the run is aborted. Each tick publishes the previous tick's decision,
// then samples ranging, position and heading in that order and commands the
// wheels exactly once.
func (c *ControlLoop) AdvanceToWaypoint(ctx context.Context, index int, wp Waypoint) Outcome {
	target := wp.Location()
	tol := wp.tolerance(c.settings.Tolerance)
	c.state.Target = &Target{Index: index, Position: target}
	log.Printf("nav waypoint=%d target=%s", index, target)

	for {
		if c.stopRequested(ctx) {
			return c.aborted(index)
		}
		c.state.UpdatedAt = c.now()
		if !c.shared.Publish(c.state) {
			return c.aborted(index)
		}
		if c.step(index, target, tol) {
			log.Printf("nav reached waypoint=%d position=%s", index, c.state.Position)
			return OutcomeReached
		}
		c.sleep(c.settings.TickInterval)
	}
}

func (c *ControlLoop) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if c.dev.KillSwitch == nil {
		return false
	}
	run, ok := c.dev.KillSwitch.State()
	return ok && !run
}

func (c *ControlLoop) aborted(index int) Outcome {
	log.Printf("nav aborted waypoint=%d", index)
	c.setMode(Mode{Kind: ModeAborted})
	return OutcomeAborted
}

// step runs one decision. It reports true when the target is reached, in
// which case the wheels keep their previous command.
func (c *ControlLoop) step(index int, target nav.Location, tol nav.Tolerance) bool {
	c.state.Ranges = c.sampleRanges()
	if kind, fired := Decide(c.state.Ranges, c.settings.ObstacleDistance, c.state.Mode, c.state.Turn, c.settings.AvoidPolicy); fired {
		c.setMode(Mode{Kind: kind})
		c.state.Turn = nil
		c.drive(avoidanceCommand(kind, c.settings.MaxSpeed))
		if kind == ModeEmergencyStop {
			c.sleep(c.settings.BrakeDwell)
		}
		return false
	}

	pos, ok := c.dev.Position.Position()
	if !ok {
		c.state.Position = nil
		c.state.Bearing = nil
		c.state.Turn = nil
		c.setMode(Mode{Kind: ModeWaitingForPosition})
		c.drive(Speed(0), Speed(0))
		return false
	}
	c.state.Position = &pos
	bearing := pos.BearingTo(target)
	c.state.Bearing = &bearing

	if nav.WithinBox(pos, target, tol) {
		c.setMode(Mode{Kind: ModeReachedWaypoint, Waypoint: index})
		return true
	}

	hdg, ok := c.dev.Heading.Heading()
	if !ok {
		c.state.Heading = nil
		c.state.Turn = nil
		c.setMode(Mode{Kind: ModeWaitingForHeading})
		c.drive(Speed(0), Speed(0))
		return false
	}
	c.state.Heading = &hdg
	turn := nav.TurnError(hdg, bearing)
	c.state.Turn = &turn

	c.setMode(Mode{Kind: ModeNavigating, Waypoint: index})
	l, r := nav.WheelSpeeds(c.settings.MaxSpeed, turn, c.settings.TurnGain)
	c.drive(Speed(l), Speed(r))
	return false
}

func (c *ControlLoop) sampleRanges() Ranges {
	if c.dev.Ranges == nil {
		return ClearRanges()
	}
	return Ranges{
		Left:  c.dev.Ranges.MinDistance(ZoneFrontLeft),
		Front: c.dev.Ranges.MinDistance(ZoneFront),
		Right: c.dev.Ranges.MinDistance(ZoneFrontRight),
	}
}

func (c *ControlLoop) drive(left, right MotionCommand) {
	c.state.Motion = [2]MotionCommand{left, right}
	if c.dev.Motors != nil {
		c.dev.Motors.Apply(left, right)
	}
}

func (c *ControlLoop) setMode(m Mode) {
	if c.state.Mode == m {
		return
	}
	if c.state.Mode.Kind != m.Kind {
		log.Printf("nav mode=%s prev=%s", m, c.state.Mode)
	}
	c.state.Mode = m
}
