package avc

import (
	"fmt"
	"strings"
	"time"

	"avc-ng/internal/nav"
)

// Wheel command limits of the motor controller.
const (
	MaxSpeedCommand = 127
	MaxBrake        = 127

	// RangeMax is what a ranging zone reports when nothing is in view.
	RangeMax = 255
)

// Waypoint is one target of a course. A zero Tolerance falls back to
// Settings.Tolerance.
type Waypoint struct {
	Lat       float64       `json:"lat" yaml:"lat"`
	Lon       float64       `json:"lon" yaml:"lon"`
	Tolerance nav.Tolerance `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

func (w Waypoint) Location() nav.Location { return nav.Location{Lat: w.Lat, Lon: w.Lon} }

func (w Waypoint) String() string { return w.Location().String() }

func (w Waypoint) tolerance(def nav.Tolerance) nav.Tolerance {
	tol := w.Tolerance
	if tol.Lat <= 0 {
		tol.Lat = def.Lat
	}
	if tol.Lon <= 0 {
		tol.Lon = def.Lon
	}
	return tol
}

// Settings are fixed for the duration of a run.
type Settings struct {
	// MaxSpeed is the outer wheel speed, 1..127.
	MaxSpeed int
	// TurnGain converts degrees of turn error into the 0..180 inner wheel
	// reduction range.
	TurnGain float64
	// ObstacleDistance is the ranging distance (cm) below which a zone counts
	// as blocked.
	ObstacleDistance int
	Tolerance        nav.Tolerance
	// SampleCount is how many raw ranging samples the sensors average.
	SampleCount  int
	EnableMotors bool

	TickInterval time.Duration
	BrakeDwell   time.Duration

	// AvoidPolicy breaks the tie when only the front zone is blocked.
	AvoidPolicy AvoidPolicy
}

// DefaultSettings mirror the values the rover raced with.
func DefaultSettings() Settings {
	return Settings{
		MaxSpeed:         127,
		TurnGain:         3.0,
		ObstacleDistance: 60,
		Tolerance:        nav.DefaultTolerance,
		SampleCount:      3,
		EnableMotors:     true,
		TickInterval:     10 * time.Millisecond,
		BrakeDwell:       100 * time.Millisecond,
		AvoidPolicy:      AwayFromTurn(ModeAvoidingLeft),
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxSpeed <= 0 {
		s.MaxSpeed = def.MaxSpeed
	}
	if s.MaxSpeed > MaxSpeedCommand {
		s.MaxSpeed = MaxSpeedCommand
	}
	if s.TurnGain <= 0 {
		s.TurnGain = def.TurnGain
	}
	if s.Tolerance.Lat <= 0 {
		s.Tolerance.Lat = def.Tolerance.Lat
	}
	if s.Tolerance.Lon <= 0 {
		s.Tolerance.Lon = def.Tolerance.Lon
	}
	if s.SampleCount <= 0 {
		s.SampleCount = def.SampleCount
	}
	if s.TickInterval <= 0 {
		s.TickInterval = def.TickInterval
	}
	if s.BrakeDwell <= 0 {
		s.BrakeDwell = def.BrakeDwell
	}
	if s.AvoidPolicy == nil {
		s.AvoidPolicy = def.AvoidPolicy
	}
	return s
}

// ModeKind names what the vehicle is doing.
type ModeKind uint8

const (
	ModeWaitingToStart ModeKind = iota
	ModeNavigating
	ModeReachedWaypoint
	ModeWaitingForPosition
	ModeWaitingForHeading
	ModeAvoidingLeft
	ModeAvoidingRight
	ModeEmergencyStop
	ModeAborted
	ModeFinished
)

var modeNames = [...]string{
	ModeWaitingToStart:     "waiting_to_start",
	ModeNavigating:         "navigating",
	ModeReachedWaypoint:    "reached_waypoint",
	ModeWaitingForPosition: "waiting_for_position_fix",
	ModeWaitingForHeading:  "waiting_for_heading_fix",
	ModeAvoidingLeft:       "avoiding_left",
	ModeAvoidingRight:      "avoiding_right",
	ModeEmergencyStop:      "emergency_stop",
	ModeAborted:            "aborted",
	ModeFinished:           "finished",
}

func (k ModeKind) String() string {
	if int(k) < len(modeNames) {
		return modeNames[k]
	}
	return fmt.Sprintf("ModeKind(%d)", int(k))
}

func (k ModeKind) MarshalText() ([]byte, error) {
	if int(k) >= len(modeNames) {
		return nil, fmt.Errorf("avc: unknown mode kind %d", int(k))
	}
	return []byte(modeNames[k]), nil
}

func (k *ModeKind) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	for i, name := range modeNames {
		if name == s {
			*k = ModeKind(i)
			return nil
		}
	}
	return fmt.Errorf("avc: unknown mode %q", s)
}

// Mode is the tagged variant published with every snapshot. Waypoint is the
// zero-based course index and only carries meaning for ModeNavigating and
// ModeReachedWaypoint.
type Mode struct {
	Kind     ModeKind `json:"kind"`
	Waypoint int      `json:"waypoint"`
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeNavigating, ModeReachedWaypoint:
		return fmt.Sprintf("%s(%d)", m.Kind, m.Waypoint)
	default:
		return m.Kind.String()
	}
}

// Terminal reports whether the run is over.
func (m Mode) Terminal() bool {
	return m.Kind == ModeAborted || m.Kind == ModeFinished
}

// Avoiding reports whether the mode is one of the hard-turn avoidance modes.
func (m Mode) Avoiding() bool {
	return m.Kind == ModeAvoidingLeft || m.Kind == ModeAvoidingRight
}

// MotionKind selects the wheel command variant.
type MotionKind uint8

const (
	MotionSpeed MotionKind = iota
	MotionCoast
	MotionBrake
)

func (k MotionKind) String() string {
	switch k {
	case MotionSpeed:
		return "speed"
	case MotionCoast:
		return "coast"
	case MotionBrake:
		return "brake"
	default:
		return fmt.Sprintf("MotionKind(%d)", int(k))
	}
}

func (k MotionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *MotionKind) UnmarshalText(b []byte) error {
	switch strings.TrimSpace(string(b)) {
	case "speed":
		*k = MotionSpeed
	case "coast":
		*k = MotionCoast
	case "brake":
		*k = MotionBrake
	default:
		return fmt.Errorf("avc: unknown motion %q", string(b))
	}
	return nil
}

// MotionCommand is a single wheel command: signed speed -127..127, coast, or
// brake with intensity 0..127. The zero value is Speed(0).
type MotionCommand struct {
	Kind  MotionKind `json:"kind"`
	Value int        `json:"value"`
}

func Speed(v int) MotionCommand {
	return MotionCommand{Kind: MotionSpeed, Value: clampInt(v, -MaxSpeedCommand, MaxSpeedCommand)}
}

func Brake(intensity int) MotionCommand {
	return MotionCommand{Kind: MotionBrake, Value: clampInt(intensity, 0, MaxBrake)}
}

func Coast() MotionCommand { return MotionCommand{Kind: MotionCoast} }

func (c MotionCommand) String() string {
	switch c.Kind {
	case MotionCoast:
		return "Coast"
	case MotionBrake:
		return fmt.Sprintf("Brake(%d)", c.Value)
	default:
		return fmt.Sprintf("Speed(%d)", c.Value)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Zone is an angular window of the ranging sensors.
type Zone uint8

const (
	ZoneFront Zone = iota
	ZoneFrontLeft
	ZoneFrontRight
)

func (z Zone) String() string {
	switch z {
	case ZoneFront:
		return "front"
	case ZoneFrontLeft:
		return "front-left"
	case ZoneFrontRight:
		return "front-right"
	default:
		return fmt.Sprintf("Zone(%d)", int(z))
	}
}

// Ranges are the latest per-zone minimum distances in centimeters.
type Ranges struct {
	Left  int `json:"front_left"`
	Front int `json:"front"`
	Right int `json:"front_right"`
}

// ClearRanges is what a run starts with before the first sample.
func ClearRanges() Ranges { return Ranges{Left: RangeMax, Front: RangeMax, Right: RangeMax} }

// Target is the active waypoint.
type Target struct {
	Index    int          `json:"index"`
	Position nav.Location `json:"position"`
}

// NavigationState is the snapshot the control loop publishes every tick.
// Optional fields are nil while the matching sensor has no fix or has not
// been sampled yet this run.
type NavigationState struct {
	Position *nav.Location    `json:"position"`
	Heading  *float64         `json:"heading"`
	Target   *Target          `json:"target"`
	Bearing  *float64         `json:"bearing"`
	Turn     *float64         `json:"turn"`
	Mode     Mode             `json:"mode"`
	Motion   [2]MotionCommand `json:"motion"`
	Ranges   Ranges           `json:"ranges"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewNavigationState() NavigationState {
	return NavigationState{
		Mode:   Mode{Kind: ModeWaitingToStart},
		Motion: [2]MotionCommand{Speed(0), Speed(0)},
		Ranges: ClearRanges(),
	}
}

// Clone returns a copy that shares no memory with s.
func (s NavigationState) Clone() NavigationState {
	out := s
	if s.Position != nil {
		v := *s.Position
		out.Position = &v
	}
	if s.Heading != nil {
		v := *s.Heading
		out.Heading = &v
	}
	if s.Target != nil {
		v := *s.Target
		out.Target = &v
	}
	if s.Bearing != nil {
		v := *s.Bearing
		out.Bearing = &v
	}
	if s.Turn != nil {
		v := *s.Turn
		out.Turn = &v
	}
	return out
}
