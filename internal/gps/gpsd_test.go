package gps

import (
	"math"
	"testing"
	"time"
)

func TestGPSDState_TPVUpdatesFix(t *testing.T) {
	now := time.Date(2025, 12, 22, 12, 0, 0, 0, time.UTC)
	st := newGPSDState("127.0.0.1:2947")

	line := `{"class":"TPV","mode":3,"time":"2025-12-22T12:00:00.000Z","lat":45.5,"lon":-122.9,"speed":1.5,"track":-90.0,"eph":4.2}`
	updated, err := st.applyLine(now, line)
	if err != nil {
		t.Fatalf("applyLine err: %v", err)
	}
	if !updated {
		t.Fatalf("expected updated")
	}

	snap := st.snapshot()
	if !snap.Valid {
		t.Fatalf("expected valid")
	}
	if math.Abs(snap.LatDeg-45.5) > 1e-9 || math.Abs(snap.LonDeg-(-122.9)) > 1e-9 {
		t.Fatalf("lat=%v lon=%v", snap.LatDeg, snap.LonDeg)
	}
	if snap.SpeedMPS == nil || *snap.SpeedMPS != 1.5 {
		t.Fatalf("speed=%v", snap.SpeedMPS)
	}
	if snap.CourseDeg == nil || *snap.CourseDeg != 270 {
		t.Fatalf("course=%v", snap.CourseDeg)
	}
	if snap.FixMode == nil || *snap.FixMode != 3 {
		t.Fatalf("fix_mode=%v", snap.FixMode)
	}
	if snap.HorizAccM == nil || math.Abs(*snap.HorizAccM-4.2) > 1e-9 {
		t.Fatalf("horiz_acc_m=%v", snap.HorizAccM)
	}
	if !snap.LastFix.Equal(now) {
		t.Fatalf("last fix=%v", snap.LastFix)
	}
}

func TestGPSDState_NoFixModeClearsValid(t *testing.T) {
	now := time.Date(2025, 12, 22, 12, 0, 0, 0, time.UTC)
	st := newGPSDState("")
	_, _ = st.applyLine(now, `{"class":"TPV","mode":2,"lat":45.5,"lon":-122.9}`)
	if !st.snapshot().Valid {
		t.Fatalf("expected valid with mode 2")
	}
	_, _ = st.applyLine(now, `{"class":"TPV","mode":1}`)
	if st.snapshot().Valid {
		t.Fatalf("expected invalid with mode 1")
	}
}

func TestGPSDState_SKYUpdatesSatsAndHDOP(t *testing.T) {
	st := newGPSDState("127.0.0.1:2947")
	line := `{"class":"SKY","hdop":0.9,"satellites":[{"used":true},{"used":false},{"used":true}]}`
	updated, err := st.applyLine(time.Now().UTC(), line)
	if err != nil {
		t.Fatalf("applyLine err: %v", err)
	}
	if !updated {
		t.Fatalf("expected updated")
	}
	snap := st.snapshot()
	if snap.Satellites == nil || *snap.Satellites != 2 {
		t.Fatalf("satellites=%v", snap.Satellites)
	}
	if snap.HDOP == nil || math.Abs(*snap.HDOP-0.9) > 1e-9 {
		t.Fatalf("hdop=%v", snap.HDOP)
	}
}

func TestGPSDState_BadJSON(t *testing.T) {
	st := newGPSDState("")
	if _, err := st.applyLine(time.Now(), "{not json"); err == nil {
		t.Fatalf("expected error")
	}
	if updated, err := st.applyLine(time.Now(), `{"class":"VERSION","release":"3.25"}`); err != nil || updated {
		t.Fatalf("VERSION updated=%v err=%v", updated, err)
	}
}

func TestGPSDState_ErrorReport(t *testing.T) {
	st := newGPSDState("")
	_, err := st.applyLine(time.Now(), `{"class":"ERROR","message":"unrecognized request"}`)
	if err == nil || err.Error() != "gpsd: unrecognized request" {
		t.Fatalf("err=%v", err)
	}
}
