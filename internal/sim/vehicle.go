package sim

import (
	"math"
	"sync"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/nav"
)

// Obstacle is a circular obstruction seen by the simulated rangefinders.
type Obstacle struct {
	Center  nav.Location
	RadiusM float64
}

type VehicleConfig struct {
	Start      nav.Location
	HeadingDeg float64
	// MaxSpeedMPS is the wheel speed at a command of avc.MaxSpeedCommand.
	MaxSpeedMPS float64
	// TrackM is the distance between the wheels.
	TrackM    float64
	Obstacles []Obstacle

	// Zone windows in degrees, as for the lidar.
	FrontHalfWidth float64
	SideWidth      float64
}

type VehicleState struct {
	Position   nav.Location `json:"position"`
	HeadingDeg float64      `json:"heading_deg"`
	LeftMPS    float64      `json:"left_mps"`
	RightMPS   float64      `json:"right_mps"`
	OdometerM  float64      `json:"odometer_m"`
}

// Vehicle is a differential-drive rover integrated on demand: every
// accessor first advances the state to now. It implements the position,
// heading, range, actuator and kill switch contracts.
type Vehicle struct {
	cfg VehicleConfig
	now func() time.Time

	mu     sync.Mutex
	last   time.Time
	st     VehicleState
	run    bool
	runSet bool
}

func NewVehicle(cfg VehicleConfig) *Vehicle {
	if cfg.MaxSpeedMPS <= 0 {
		cfg.MaxSpeedMPS = 1.5
	}
	if cfg.TrackM <= 0 {
		cfg.TrackM = 0.4
	}
	if cfg.FrontHalfWidth <= 0 {
		cfg.FrontHalfWidth = 15
	}
	if cfg.SideWidth <= 0 {
		cfg.SideWidth = 30
	}
	return &Vehicle{
		cfg: cfg,
		now: time.Now,
		st: VehicleState{
			Position:   cfg.Start,
			HeadingDeg: nav.Normalize360(cfg.HeadingDeg),
		},
	}
}

// SetClock replaces the time source. The next access integrates from the
// new clock's current time.
func (v *Vehicle) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
	v.last = time.Time{}
}

func (v *Vehicle) advanceLocked() {
	now := v.now()
	if v.last.IsZero() {
		v.last = now
		return
	}
	dt := now.Sub(v.last).Seconds()
	v.last = now
	if dt <= 0 {
		return
	}

	vl, vr := v.st.LeftMPS, v.st.RightMPS
	speed := (vl + vr) / 2
	// Heading is clockwise, so a faster left wheel turns right.
	omega := (vl - vr) / v.cfg.TrackM
	h0 := v.st.HeadingDeg * math.Pi / 180
	h1 := h0 + omega*dt

	var north, east float64
	if math.Abs(omega) < 1e-9 {
		north = speed * dt * math.Cos(h0)
		east = speed * dt * math.Sin(h0)
	} else {
		r := speed / omega
		north = r * (math.Sin(h1) - math.Sin(h0))
		east = r * (math.Cos(h0) - math.Cos(h1))
	}
	v.st.Position = v.st.Position.Offset(north, east)
	v.st.HeadingDeg = nav.Normalize360(h1 * 180 / math.Pi)
	v.st.OdometerM += math.Abs(speed) * dt
}

func (v *Vehicle) Position() (nav.Location, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()
	return v.st.Position, true
}

func (v *Vehicle) Heading() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()
	return v.st.HeadingDeg, true
}

func (v *Vehicle) wheelMPS(cmd avc.MotionCommand) float64 {
	if cmd.Kind != avc.MotionSpeed {
		return 0
	}
	return float64(cmd.Value) / float64(avc.MaxSpeedCommand) * v.cfg.MaxSpeedMPS
}

// Apply changes the wheel speeds instantly. Brake and coast both stop the
// wheel.
func (v *Vehicle) Apply(left, right avc.MotionCommand) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()
	v.st.LeftMPS = v.wheelMPS(left)
	v.st.RightMPS = v.wheelMPS(right)
}

// MinDistance returns the gap in centimeters to the nearest obstacle whose
// angular extent overlaps zone.
func (v *Vehicle) MinDistance(zone avc.Zone) int {
	fw, sw := v.cfg.FrontHalfWidth, v.cfg.SideWidth
	var from, to float64
	switch zone {
	case avc.ZoneFront:
		from, to = -fw, fw
	case avc.ZoneFrontLeft:
		from, to = -(fw + sw), -fw
	case avc.ZoneFrontRight:
		from, to = fw, fw+sw
	default:
		return avc.RangeMax
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()

	best := avc.RangeMax
	for _, o := range v.cfg.Obstacles {
		d := v.st.Position.DistanceMeters(o.Center)
		gap := d - o.RadiusM
		if gap < 0 {
			gap = 0
		}
		rel := nav.TurnError(v.st.HeadingDeg, v.st.Position.BearingTo(o.Center))
		half := 90.0
		if d > o.RadiusM {
			half = math.Asin(o.RadiusM/d) * 180 / math.Pi
		}
		if rel+half < from || rel-half > to {
			continue
		}
		cm := int(math.Round(gap * 100))
		if cm < best {
			best = cm
		}
	}
	return best
}

// SetSwitch sets the simulated kill switch.
func (v *Vehicle) SetSwitch(run bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.run = run
	v.runSet = true
}

func (v *Vehicle) State() (run bool, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.run, v.runSet
}

func (v *Vehicle) Snapshot() VehicleState {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()
	return v.st
}
