package avc

import (
	"encoding/json"
	"testing"

	"avc-ng/internal/nav"
)

func TestMotionCommandClamps(t *testing.T) {
	if got := Speed(300); got.Value != 127 {
		t.Fatalf("Speed(300)=%s", got)
	}
	if got := Speed(-300); got.Value != -127 {
		t.Fatalf("Speed(-300)=%s", got)
	}
	if got := Brake(-5); got.Value != 0 {
		t.Fatalf("Brake(-5)=%s", got)
	}
	if got := Brake(500); got.String() != "Brake(127)" {
		t.Fatalf("Brake(500)=%s", got)
	}
	if (MotionCommand{}) != Speed(0) {
		t.Fatalf("zero value is not Speed(0)")
	}
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{
		{Kind: ModeNavigating, Waypoint: 2}:      "navigating(2)",
		{Kind: ModeReachedWaypoint, Waypoint: 0}: "reached_waypoint(0)",
		{Kind: ModeEmergencyStop, Waypoint: 4}:   "emergency_stop",
		{Kind: ModeWaitingToStart}:               "waiting_to_start",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Fatalf("%#v String=%q want %q", m, got, want)
		}
	}
	if !(Mode{Kind: ModeAborted}).Terminal() || (Mode{Kind: ModeEmergencyStop}).Terminal() {
		t.Fatalf("Terminal wrong")
	}
}

func TestNavigationStateJSON(t *testing.T) {
	st := NewNavigationState()
	st.Position = &nav.Location{Lat: 40, Lon: -105}
	st.Mode = Mode{Kind: ModeAvoidingRight}
	st.Motion = [2]MotionCommand{Speed(0), Speed(127)}

	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got NavigationState
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v (%s)", err, b)
	}
	if got.Mode != st.Mode || got.Motion != st.Motion || got.Heading != nil || got.Position.Lat != 40 {
		t.Fatalf("got %+v", got)
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if mode := raw["mode"].(map[string]any); mode["kind"] != "avoiding_right" {
		t.Fatalf("mode json=%v", raw["mode"])
	}
}

func TestSettingsWithDefaults(t *testing.T) {
	s := Settings{MaxSpeed: 500}.withDefaults()
	if s.MaxSpeed != 127 || s.TurnGain != 3 || s.TickInterval == 0 || s.AvoidPolicy == nil {
		t.Fatalf("settings=%+v", s)
	}
}
