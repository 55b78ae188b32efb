package nmea

import "testing"

func TestParse_ChecksumOK(t *testing.T) {
	line := Format("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Type != "RMC" || s.Talker != "GP" {
		t.Fatalf("type=%q talker=%q", s.Type, s.Talker)
	}
	if v, ok := s.Float(7); !ok || v != 22.4 {
		t.Fatalf("field 7=%v ok=%v", v, ok)
	}
	if s.Field(99) != "" {
		t.Fatalf("out of range field not empty")
	}
}

func TestParse_Rejects(t *testing.T) {
	good := Format("HCHDG,98.3,0.0,E,12.6,W")
	cases := map[string]string{
		"mismatch":    good[:len(good)-2] + "00",
		"no dollar":   good[1:],
		"no checksum": "$HCHDG,98.3,0.0,E,12.6,W",
		"short type":  Format("AB,1"),
	}
	for name, line := range cases {
		if _, err := Parse(line); err == nil {
			t.Fatalf("%s: expected error for %q", name, line)
		}
	}
}

func TestFormatKnownChecksum(t *testing.T) {
	// Reference sentence from the NMEA 0183 documentation.
	want := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	if got := Format("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"); got != want {
		t.Fatalf("Format=%q want %q", got, want)
	}
}
