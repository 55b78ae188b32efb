package gps

import (
	"math"
	"strconv"
	"time"

	"avc-ng/internal/nav"
	"avc-ng/internal/nmea"
)

const knotsToMPS = 0.514444

type nmeaState struct {
	device string
	baud   int

	latDeg float64
	lonDeg float64
	posOK  bool

	speedMPS  float64
	speedOK   bool
	courseDeg float64
	courseOK  bool

	fixQuality   int
	fixQualityOK bool
	satellites   int
	satsOK       bool
	hdop         float64
	hdopOK       bool

	lastFix time.Time
	valid   bool
}

func (s *nmeaState) apply(nowUTC time.Time, sent nmea.Sentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent)
	case "GGA":
		return s.applyGGA(nowUTC, sent)
	default:
		return false
	}
}

func (s *nmeaState) snapshot() Snapshot {
	out := Snapshot{
		Enabled: true,
		Valid:   s.valid,
		Source:  "nmea",
		Device:  s.device,
		Baud:    s.baud,
		LatDeg:  s.latDeg,
		LonDeg:  s.lonDeg,
		LastFix: s.lastFix,
	}
	if s.speedOK {
		v := s.speedMPS
		out.SpeedMPS = &v
	}
	if s.courseOK {
		v := s.courseDeg
		out.CourseDeg = &v
	}
	if s.fixQualityOK {
		v := s.fixQuality
		out.FixQuality = &v
	}
	if s.satsOK {
		v := s.satellites
		out.Satellites = &v
	}
	if s.hdopOK {
		v := s.hdop
		out.HDOP = &v
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// RMC fields: 1 time, 2 status (A/V), 3-4 latitude, 5-6 longitude,
// 7 speed (knots), 8 course (deg), 9 date.
//
// A void status drops the fix so the vehicle stops instead of steering on a
// stale position.
func (s *nmeaState) applyRMC(nowUTC time.Time, f nmea.Sentence) bool {
	if len(f.Fields) < 10 {
		return false
	}
	if f.Field(2) != "A" {
		changed := s.valid
		s.valid = false
		return changed
	}

	lat, latOK := nav.ParseDDM(f.Field(3), f.Field(4))
	lon, lonOK := nav.ParseDDM(f.Field(5), f.Field(6))
	if !latOK || !lonOK {
		return false
	}
	s.latDeg, s.lonDeg, s.posOK = lat, lon, true

	if kt, ok := f.Float(7); ok {
		s.speedMPS = kt * knotsToMPS
		s.speedOK = true
	}
	if crs, ok := f.Float(8); ok {
		s.courseDeg = nav.Normalize360(crs)
		s.courseOK = true
	}
	s.lastFix = nowUTC
	s.valid = true
	return true
}

// GGA fields: 1 time, 2-3 latitude, 4-5 longitude, 6 fix quality
// (0 = invalid), 7 satellites, 8 HDOP.
func (s *nmeaState) applyGGA(nowUTC time.Time, f nmea.Sentence) bool {
	if len(f.Fields) < 9 {
		return false
	}
	q, err := strconv.Atoi(f.Field(6))
	if err != nil || q == 0 {
		changed := s.valid
		s.valid = false
		s.fixQuality, s.fixQualityOK = 0, err == nil
		return changed
	}
	s.fixQuality, s.fixQualityOK = q, true
	if sats, err := strconv.Atoi(f.Field(7)); err == nil {
		s.satellites, s.satsOK = sats, true
	}
	if hdop, ok := f.Float(8); ok && !math.IsNaN(hdop) {
		s.hdop, s.hdopOK = hdop, true
	}

	lat, latOK := nav.ParseDDM(f.Field(2), f.Field(3))
	lon, lonOK := nav.ParseDDM(f.Field(4), f.Field(5))
	if latOK && lonOK {
		s.latDeg, s.lonDeg, s.posOK = lat, lon, true
	}
	if !s.posOK {
		return false
	}
	s.lastFix = nowUTC
	s.valid = true
	return true
}
