package nav

import "math"

const metersPerDegLat = 111320.0

func radians(d float64) float64 { return d * math.Pi / 180.0 }
func degrees(r float64) float64 { return r * 180.0 / math.Pi }

// BearingTo returns the rhumb-line (constant heading) bearing from l to dest
// in degrees, normalized to [0,360).
func (l Location) BearingTo(dest Location) float64 {
	startLat := radians(l.Lat)
	destLat := radians(dest.Lat)
	deltaLon := radians(dest.Lon - l.Lon)

	// Difference of Mercator-stretched latitudes.
	deltaPhi := math.Log(math.Tan(destLat/2+math.Pi/4) / math.Tan(startLat/2+math.Pi/4))

	// Take the short way across the date line.
	if math.Abs(deltaLon) > math.Pi {
		if deltaLon > 0 {
			deltaLon = -(2*math.Pi - deltaLon)
		} else {
			deltaLon = 2*math.Pi + deltaLon
		}
	}

	return Normalize360(degrees(math.Atan2(deltaLon, deltaPhi)))
}

// EstimateBearingTo is a cheap planar approximation of BearingTo. latScale
// and lonScale convert a degree of latitude/longitude into a common unit
// (e.g. 69 and 53 statute miles around 40°N). Over a few hundred meters it
// agrees with BearingTo to within a degree.
func (l Location) EstimateBearingTo(dest Location, latScale, lonScale float64) float64 {
	dy := (dest.Lat - l.Lat) * latScale
	dx := (dest.Lon - l.Lon) * lonScale
	if dx == 0 && dy == 0 {
		return 0
	}

	ax := math.Abs(dx)
	ay := math.Abs(dy)
	var angle float64
	if ax > ay {
		angle = degrees(math.Atan(ay / ax))
	} else {
		angle = degrees(math.Atan(ax / ay))
	}

	switch {
	case dx > 0 && dy > 0:
		if ax > ay {
			return 90 - angle
		}
		return angle
	case dx > 0:
		if ax > ay {
			return 90 + angle
		}
		return 180 - angle
	case dy > 0:
		if ax > ay {
			return 270 + angle
		}
		return Normalize360(360 - angle)
	default:
		if ax > ay {
			return 270 - angle
		}
		return 180 + angle
	}
}

// DistanceMeters is an equirectangular approximation, good enough for the
// short legs of a course. It is informational only; arrival uses WithinBox.
func (l Location) DistanceMeters(dest Location) float64 {
	midLat := radians((l.Lat + dest.Lat) / 2)
	dy := (dest.Lat - l.Lat) * metersPerDegLat
	dx := NormalizeSigned(dest.Lon-l.Lon) * metersPerDegLat * math.Cos(midLat)
	return math.Hypot(dx, dy)
}

// Offset moves l by the given north/east distances in meters.
func (l Location) Offset(northM, eastM float64) Location {
	lat := l.Lat + northM/metersPerDegLat
	cos := math.Cos(radians(l.Lat))
	if cos < 1e-9 {
		cos = 1e-9
	}
	lon := NormalizeSigned(l.Lon + eastM/(metersPerDegLat*cos))
	return Location{Lat: lat, Lon: lon}
}

// Normalize360 maps any angle into [0,360).
func Normalize360(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r -= 360
	}
	return r
}

// NormalizeSigned maps any angle into (-180,180]. It is idempotent.
func NormalizeSigned(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r <= -180 {
		r += 360
	} else if r > 180 {
		r -= 360
	}
	return r
}

// TurnError is the signed turn needed to go from heading to bearing.
// Negative means turn left.
func TurnError(heading, bearing float64) float64 {
	return NormalizeSigned(bearing - heading)
}
