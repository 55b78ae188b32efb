package nav

import "math"

// Tolerance is the per-axis acceptance box around a waypoint, in degrees.
type Tolerance struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// DefaultTolerance is roughly 2.8m north-south at any latitude.
var DefaultTolerance = Tolerance{Lat: 0.000025, Lon: 0.000025}

// WithinBox is the arrival test: each axis independently inside the
// tolerance. It is a box, not a radius.
func WithinBox(cur, target Location, tol Tolerance) bool {
	return math.Abs(cur.Lat-target.Lat) < tol.Lat && math.Abs(cur.Lon-target.Lon) < tol.Lon
}

// InnerWheelSpeed converts a turn error into the speed of the wheel on the
// inside of the turn. gain scales degrees of error into degrees of the
// 0..180 reduction range; at |turnErr|*gain >= 180 the inner wheel stops.
// The result is truncated toward zero like the motor command range.
func InnerWheelSpeed(maxSpeed int, turnErr, gain float64) int {
	reduction := math.Abs(turnErr) * gain
	if reduction > 180 || math.IsNaN(reduction) {
		reduction = 180
	}
	coeff := math.Max(0, 180-reduction) / 180
	return int(coeff * float64(maxSpeed))
}

// WheelSpeeds returns left and right wheel speeds for a signed turn error.
// The outer wheel runs at maxSpeed; a negative error slows the left wheel
// and a positive error slows the right wheel.
func WheelSpeeds(maxSpeed int, turnErr, gain float64) (left, right int) {
	left, right = maxSpeed, maxSpeed
	inner := InnerWheelSpeed(maxSpeed, turnErr, gain)
	if turnErr < 0 {
		left = inner
	} else {
		right = inner
	}
	return left, right
}
