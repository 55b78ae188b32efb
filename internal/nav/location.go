package nav

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Location is a position in decimal degrees.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f, %.6f", l.Lat, l.Lon)
}

// Valid reports whether the location is finite and inside the usual ranges.
func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lon) || math.IsInf(l.Lat, 0) || math.IsInf(l.Lon, 0) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// DMS is an angle in degrees, minutes and seconds. The sign lives on D.
type DMS struct {
	D int
	M int
	S int
}

func (d DMS) Decimal() float64 {
	v := math.Abs(float64(d.D)) + float64(d.M)/60.0 + float64(d.S)/3600.0
	if d.D < 0 {
		return -v
	}
	return v
}

func (d DMS) String() string {
	return fmt.Sprintf("%d° %d' %d\"", d.D, d.M, d.S)
}

// ParseDDM parses an NMEA degrees-decimal-minutes field (ddmm.mmmm or
// dddmm.mmmm) plus its hemisphere letter into decimal degrees.
func ParseDDM(v, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.ToUpper(strings.TrimSpace(hemi))
	if v == "" {
		return 0, false
	}
	switch hemi {
	case "N", "S", "E", "W":
	default:
		return 0, false
	}

	// The last two digits of the integer part are whole minutes.
	intPart := v
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil || mins >= 60 {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
