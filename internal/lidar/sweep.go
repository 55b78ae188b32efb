// Package lidar reads a Scanse Sweep scanning rangefinder and reduces each
// revolution to per-zone minimum distances.
package lidar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	packetLen = 7
	headerLen = 6

	syncBit = 0x01
)

var (
	cmdStartStream = []byte("DS\n")
	cmdStopStream  = []byte("DX\n")

	ErrChecksum = errors.New("lidar: packet checksum mismatch")
)

// Point is one range sample. Angle increases clockwise from the nose.
type Point struct {
	AngleDeg float64
	DistCM   int
	Signal   uint8
	// Sync marks the first sample of a new revolution.
	Sync bool
}

// DecodePacket parses one 7-byte data block.
func DecodePacket(b []byte) (Point, error) {
	if len(b) != packetLen {
		return Point{}, fmt.Errorf("lidar: packet length %d", len(b))
	}
	var sum int
	for _, v := range b[:6] {
		sum += int(v)
	}
	if byte(sum%255) != b[6] {
		return Point{}, ErrChecksum
	}
	if b[0]&^syncBit != 0 {
		return Point{}, fmt.Errorf("lidar: device error flags 0x%02X", b[0]&^syncBit)
	}
	return Point{
		AngleDeg: float64(binary.LittleEndian.Uint16(b[1:3])) / 16.0,
		DistCM:   int(binary.LittleEndian.Uint16(b[3:5])),
		Signal:   b[5],
		Sync:     b[0]&syncBit != 0,
	}, nil
}

// startStream sends DS and consumes the acknowledgement.
func startStream(rw io.ReadWriter) error {
	if _, err := rw.Write(cmdStartStream); err != nil {
		return fmt.Errorf("lidar: start stream: %w", err)
	}
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(rw, hdr); err != nil {
		return fmt.Errorf("lidar: read stream ack: %w", err)
	}
	if hdr[0] != 'D' || hdr[1] != 'S' {
		return fmt.Errorf("lidar: unexpected stream ack %q", hdr)
	}
	if hdr[2] != '0' || hdr[3] != '0' {
		return fmt.Errorf("lidar: stream refused status=%q", hdr[2:4])
	}
	return nil
}

// Sweep holds the latest distance per whole degree. Zero means no return.
type Sweep [360]int

func (s *Sweep) add(p Point) {
	i := int(math.Floor(p.AngleDeg)) % 360
	if i < 0 {
		i += 360
	}
	s[i] = p.DistCM
}

// Min returns the closest non-zero return between from and to degrees
// inclusive, walking clockwise and wrapping through 0. It returns ok=false
// when the window has no returns.
func (s *Sweep) Min(from, to float64) (int, bool) {
	start := int(math.Floor(normalize(from)))
	end := int(math.Floor(normalize(to)))
	n := end - start
	if n < 0 {
		n += 360
	}
	best, ok := 0, false
	for k := 0; k <= n; k++ {
		d := s[(start+k)%360]
		if d <= 0 {
			continue
		}
		if !ok || d < best {
			best, ok = d, true
		}
	}
	return best, ok
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
