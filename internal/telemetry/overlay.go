package telemetry

import (
	"fmt"
	"time"

	"avc-ng/internal/avc"
)

// FormatOverlay renders the status lines drawn over the onboard video: UTC
// time, fix, heading, target, turn, wheel commands, zone ranges and mode.
func FormatOverlay(st avc.NavigationState, now time.Time) []string {
	lines := make([]string, 0, 8)
	lines = append(lines, "UTC: "+now.UTC().Format("2006-01-02 15:04:05"))

	if st.Position != nil {
		lines = append(lines, fmt.Sprintf("GPS: %.6f, %.6f", st.Position.Lat, st.Position.Lon))
	} else {
		lines = append(lines, "GPS: N/A")
	}
	if st.Heading != nil {
		lines = append(lines, fmt.Sprintf("Compass: %.1f", *st.Heading))
	} else {
		lines = append(lines, "Compass: N/A")
	}
	if st.Target != nil && st.Bearing != nil {
		lines = append(lines, fmt.Sprintf("Waypoint: %d @ %.1f", st.Target.Index, *st.Bearing))
	} else {
		lines = append(lines, "Waypoint: N/A")
	}
	if st.Turn != nil {
		lines = append(lines, fmt.Sprintf("Turn: %.1f", *st.Turn))
	} else {
		lines = append(lines, "Turn: N/A")
	}
	lines = append(lines,
		fmt.Sprintf("Motors: %s / %s", st.Motion[0], st.Motion[1]),
		fmt.Sprintf("FL=%d, FF=%d, FR=%d", st.Ranges.Left, st.Ranges.Front, st.Ranges.Right),
		st.Mode.String(),
	)
	return lines
}
