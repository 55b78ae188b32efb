package avc

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Result summarizes a finished run.
type Result struct {
	Mode    Mode
	Reached int
}

// Runner executes a whole course: start gate, one AdvanceToWaypoint per
// waypoint, then a final brake.
type Runner struct {
	loop      *ControlLoop
	shared    *Shared
	consumers []Consumer
}

func NewRunner(settings Settings, shared *Shared, dev Devices, consumers ...Consumer) *Runner {
	return &Runner{
		loop:      NewControlLoop(settings, shared, dev),
		shared:    shared,
		consumers: consumers,
	}
}

// Loop exposes the control loop so callers can swap its clock in tests.
func (r *Runner) Loop() *ControlLoop { return r.loop }

// Run drives the course and returns once every consumer has shut down. The
// only error is a device that failed to start, which happens before any
// wheel command is sent.
func (r *Runner) Run(ctx context.Context, course []Waypoint) (Result, error) {
	if err := r.startDevices(ctx); err != nil {
		return Result{}, err
	}
	log.Printf("avc course loaded waypoints=%d", len(course))

	res := Result{Mode: Mode{Kind: ModeFinished}}
	if !r.waitForStart(ctx) {
		res.Mode = Mode{Kind: ModeAborted}
	} else {
		for i, wp := range course {
			if r.loop.AdvanceToWaypoint(ctx, i, wp) == OutcomeAborted {
				res.Mode = Mode{Kind: ModeAborted}
				r.shared.Abort()
				break
			}
			res.Reached++
		}
	}

	res.Mode = r.finish(res.Mode)
	log.Printf("avc course done mode=%s reached=%d/%d", res.Mode, res.Reached, len(course))
	r.waitForConsumers()
	return res, nil
}

func (r *Runner) startDevices(ctx context.Context) error {
	dev := r.loop.dev
	for _, d := range []any{dev.KillSwitch, dev.Position, dev.Heading, dev.Ranges, dev.Motors} {
		s, ok := d.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("avc: start %T: %w", d, err)
		}
	}
	return nil
}

// waitForStart holds the vehicle until the kill switch reads run or the
// operator requests a start. It reports false if the run was aborted first.
func (r *Runner) waitForStart(ctx context.Context) bool {
	c := r.loop
	c.setMode(Mode{Kind: ModeWaitingToStart})
	log.Printf("avc waiting for start")
	for {
		if ctx.Err() != nil {
			return false
		}
		c.state.UpdatedAt = c.now()
		switch r.shared.publishWaiting(c.state) {
		case gateAborted:
			return false
		case gateStarted:
			log.Printf("avc started by operator")
			return true
		}
		if ks := c.dev.KillSwitch; ks != nil {
			if run, ok := ks.State(); ok && run {
				log.Printf("avc started by switch")
				return true
			}
		}
		c.sleep(c.settings.TickInterval)
	}
}

// finish brakes both wheels and publishes the terminal snapshot.
func (r *Runner) finish(mode Mode) Mode {
	c := r.loop
	c.setMode(mode)
	c.drive(Brake(MaxBrake), Brake(MaxBrake))
	c.state.UpdatedAt = c.now()
	return r.shared.finalize(c.state)
}

func (r *Runner) waitForConsumers() {
	for _, cons := range r.consumers {
		start := time.Now()
		<-cons.Done()
		if d := time.Since(start); d > time.Second {
			log.Printf("avc telemetry consumer %T took %s to stop", cons, d.Round(time.Millisecond))
		}
	}
}
