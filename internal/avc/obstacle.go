package avc

// AvoidPolicy picks the avoidance direction when only the front zone is
// blocked and no avoidance is already under way. turn is the last known
// turn error and may be nil.
type AvoidPolicy func(turn *float64) ModeKind

// AwayFromTurn steers against the planned turn: a pending left turn
// (negative error) means the path ahead bends left into the obstacle, so the
// vehicle breaks right with ModeAvoidingLeft, and vice versa. Without a turn
// estimate it falls back to def.
func AwayFromTurn(def ModeKind) AvoidPolicy {
	return func(turn *float64) ModeKind {
		switch {
		case turn == nil || *turn == 0:
			return def
		case *turn < 0:
			return ModeAvoidingLeft
		default:
			return ModeAvoidingRight
		}
	}
}

// Decide runs the obstacle table against the latest ranges. It reports
// fired=false when every zone is clear. The labelled side of an avoidance
// mode is where the obstacle is; the vehicle turns away from it.
//
// Once an avoidance turn is under way it is held for as long as the front
// stays blocked, so noisy side readings cannot make the vehicle oscillate.
func Decide(r Ranges, threshold int, prior Mode, turn *float64, policy AvoidPolicy) (kind ModeKind, fired bool) {
	front := r.Front < threshold
	left := r.Left < threshold
	right := r.Right < threshold

	switch {
	case front && left && right:
		return ModeEmergencyStop, true
	case front && prior.Avoiding():
		return prior.Kind, true
	case front && left:
		return ModeAvoidingLeft, true
	case front && right:
		return ModeAvoidingRight, true
	case front:
		if policy == nil {
			policy = AwayFromTurn(ModeAvoidingLeft)
		}
		return policy(turn), true
	case left:
		return ModeAvoidingLeft, true
	case right:
		return ModeAvoidingRight, true
	}
	return 0, false
}

// avoidanceCommand maps an obstacle mode to its wheel pair.
func avoidanceCommand(kind ModeKind, maxSpeed int) (left, right MotionCommand) {
	switch kind {
	case ModeAvoidingLeft:
		return Speed(maxSpeed), Speed(0)
	case ModeAvoidingRight:
		return Speed(0), Speed(maxSpeed)
	default:
		return Brake(MaxBrake), Brake(MaxBrake)
	}
}
