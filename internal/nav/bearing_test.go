package nav

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func TestBearingTo_BoulderToDIA(t *testing.T) {
	dia := Location{Lat: 39.8617, Lon: -104.6731}
	boulder := Location{Lat: 40.0274, Lon: -105.2519}

	if got := fmt.Sprintf("%.2f", boulder.BearingTo(dia)); got != "110.48" {
		t.Fatalf("bearing=%s want 110.48", got)
	}
	if got := fmt.Sprintf("%.2f", boulder.EstimateBearingTo(dia, 69, 53)); got != "110.44" {
		t.Fatalf("estimate=%s want 110.44", got)
	}
}

func TestBearingTo_CourseLegs(t *testing.T) {
	cases := []struct {
		from, to Location
		want     string
	}{
		{Location{40.0906963, -105.185844}, Location{40.0908317, -105.185734}, "31.86"},
		{Location{40.0908317, -105.185734}, Location{40.0910061, -105.1855154}, "43.80"},
		{Location{40.09069, -105.18585}, Location{40.09128, -105.18517}, "41.40"},
	}
	for _, tc := range cases {
		if got := fmt.Sprintf("%.2f", tc.from.BearingTo(tc.to)); got != tc.want {
			t.Fatalf("%v -> %v bearing=%s want %s", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestBearingTo_DateLine(t *testing.T) {
	east := Location{Lat: 0, Lon: 179.9}
	west := Location{Lat: 0, Lon: -179.9}
	if got := east.BearingTo(west); math.Abs(got-90) > 1e-9 {
		t.Fatalf("east->west=%v want 90", got)
	}
	if got := west.BearingTo(east); math.Abs(got-270) > 1e-9 {
		t.Fatalf("west->east=%v want 270", got)
	}
}

func TestEstimateBearingTo_Accuracy(t *testing.T) {
	const (
		latMin, latMax = 40.09027, 40.09145
		lonMin, lonMax = -105.18591, -105.18467
	)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		a := Location{Lat: latMin + rng.Float64()*(latMax-latMin), Lon: lonMin + rng.Float64()*(lonMax-lonMin)}
		b := Location{Lat: latMin + rng.Float64()*(latMax-latMin), Lon: lonMin + rng.Float64()*(lonMax-lonMin)}
		exact := a.BearingTo(b)
		est := a.EstimateBearingTo(b, 69, 53)
		if d := math.Abs(NormalizeSigned(exact - est)); d > 1.0 {
			t.Fatalf("%v -> %v exact=%.2f estimate=%.2f diff=%.2f", a, b, exact, est, d)
		}
	}
}

func TestNormalizeSigned_RangeAndIdempotent(t *testing.T) {
	for x := -1080.0; x <= 1080.0; x += 0.5 {
		n := NormalizeSigned(x)
		if n <= -180 || n > 180 {
			t.Fatalf("NormalizeSigned(%v)=%v out of (-180,180]", x, n)
		}
		if again := NormalizeSigned(n); again != n {
			t.Fatalf("NormalizeSigned not idempotent at %v: %v then %v", x, n, again)
		}
	}
	if got := NormalizeSigned(-180); got != 180 {
		t.Fatalf("NormalizeSigned(-180)=%v want 180", got)
	}
}

func TestTurnError_AllHeadingsAndBearings(t *testing.T) {
	for h := 0.0; h < 360; h += 7.5 {
		for b := 0.0; b < 360; b += 7.5 {
			e := TurnError(h, b)
			if e <= -180 || e > 180 {
				t.Fatalf("TurnError(%v,%v)=%v", h, b, e)
			}
		}
	}
	if got := TurnError(350, 10); got != 20 {
		t.Fatalf("TurnError(350,10)=%v want 20", got)
	}
	if got := TurnError(10, 350); got != -20 {
		t.Fatalf("TurnError(10,350)=%v want -20", got)
	}
}

func TestNormalize360(t *testing.T) {
	cases := map[float64]float64{-90: 270, 0: 0, 360: 0, 725: 5, -720: 0}
	for in, want := range cases {
		if got := Normalize360(in); got != want {
			t.Fatalf("Normalize360(%v)=%v want %v", in, got, want)
		}
	}
}

func TestDistanceMeters_Offset(t *testing.T) {
	start := Location{Lat: 40.09, Lon: -105.18}
	dest := start.Offset(30, 40)
	if d := start.DistanceMeters(dest); math.Abs(d-50) > 0.1 {
		t.Fatalf("distance=%v want ~50", d)
	}
	if b := start.BearingTo(dest); math.Abs(b-53.13) > 0.1 {
		t.Fatalf("bearing=%v want ~53.13", b)
	}
}
