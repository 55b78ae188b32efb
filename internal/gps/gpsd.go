package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"avc-ng/internal/nav"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch asks gpsd for JSON reports in SI units.
func gpsdWatch(w io.Writer) error {
	_, err := io.WriteString(w, `?WATCH={"enable":true,"json":true,"scaled":true}`+"\n")
	return err
}

// gpsdReport holds the fields of the TPV, SKY and ERROR classes we use.
// gpsd omits fields it has no value for, hence the pointers.
type gpsdReport struct {
	Class string `json:"class"`

	// TPV
	Mode  *int     `json:"mode"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Speed *float64 `json:"speed"`
	Track *float64 `json:"track"`
	Eph   *float64 `json:"eph"`
	Epx   *float64 `json:"epx"`
	Epy   *float64 `json:"epy"`

	// SKY
	HDOP       *float64 `json:"hdop"`
	Satellites []struct {
		Used bool `json:"used"`
	} `json:"satellites"`

	// ERROR
	Message string `json:"message"`
}

// gpsdState accumulates reports. A nil field has not been reported yet.
type gpsdState struct {
	addr string

	lat, lon  *float64
	speedMPS  *float64
	courseDeg *float64
	mode      *int
	satsUsed  *int
	hdop      *float64
	hAccM     *float64

	lastFix time.Time
	valid   bool
}

func newGPSDState(addr string) *gpsdState {
	return &gpsdState{addr: strings.TrimSpace(addr)}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (s *gpsdState) snapshot() Snapshot {
	out := Snapshot{
		Enabled:    true,
		Valid:      s.valid,
		Device:     "gpsd",
		Source:     "gpsd",
		GPSDAddr:   s.addr,
		SpeedMPS:   copyPtr(s.speedMPS),
		CourseDeg:  copyPtr(s.courseDeg),
		FixMode:    copyPtr(s.mode),
		Satellites: copyPtr(s.satsUsed),
		HDOP:       copyPtr(s.hdop),
		HorizAccM:  copyPtr(s.hAccM),
		LastFix:    s.lastFix,
	}
	if s.lat != nil && s.lon != nil {
		out.LatDeg, out.LonDeg = *s.lat, *s.lon
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// applyLine folds one JSON report into the state and reports whether
// anything changed. Classes other than TPV and SKY are ignored.
func (s *gpsdState) applyLine(nowUTC time.Time, line string) (bool, error) {
	var r gpsdReport
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return false, fmt.Errorf("gpsd: parse report: %w", err)
	}
	switch strings.ToUpper(strings.TrimSpace(r.Class)) {
	case "TPV":
		return s.applyTPV(nowUTC, r), nil
	case "SKY":
		return s.applySKY(r), nil
	case "ERROR":
		return false, fmt.Errorf("gpsd: %s", r.Message)
	default:
		return false, nil
	}
}

func set[T any](dst **T, v *T) bool {
	if v == nil {
		return false
	}
	*dst = v
	return true
}

// applyTPV treats mode >= 2 with lat/lon as a fix. Fix times come from the
// local clock so staleness is judged against the same clock that reads it.
func (s *gpsdState) applyTPV(nowUTC time.Time, r gpsdReport) bool {
	updated := set(&s.mode, r.Mode)
	updated = set(&s.lat, r.Lat) || updated
	updated = set(&s.lon, r.Lon) || updated
	updated = set(&s.speedMPS, r.Speed) || updated
	if r.Track != nil {
		c := nav.Normalize360(*r.Track)
		s.courseDeg = &c
		updated = true
	}
	switch {
	case r.Eph != nil:
		s.hAccM = r.Eph
		updated = true
	case r.Epx != nil && r.Epy != nil:
		h := math.Hypot(*r.Epx, *r.Epy)
		s.hAccM = &h
		updated = true
	}

	if s.mode == nil {
		return updated
	}
	if *s.mode >= 2 && s.lat != nil && s.lon != nil {
		s.valid = true
		s.lastFix = nowUTC
		return true
	}
	if *s.mode < 2 && s.valid {
		s.valid = false
		return true
	}
	return updated
}

func (s *gpsdState) applySKY(r gpsdReport) bool {
	updated := set(&s.hdop, r.HDOP)
	if len(r.Satellites) > 0 {
		used := 0
		for _, sat := range r.Satellites {
			if sat.Used {
				used++
			}
		}
		s.satsUsed = &used
		updated = true
	}
	return updated
}
