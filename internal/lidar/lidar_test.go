package lidar

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/serialport"
)

func packet(sync bool, angle float64, dist int) []byte {
	b := make([]byte, packetLen)
	if sync {
		b[0] = syncBit
	}
	binary.LittleEndian.PutUint16(b[1:3], uint16(angle*16))
	binary.LittleEndian.PutUint16(b[3:5], uint16(dist))
	b[5] = 100
	sum := 0
	for _, v := range b[:6] {
		sum += int(v)
	}
	b[6] = byte(sum % 255)
	return b
}

func TestDecodePacket(t *testing.T) {
	p, err := DecodePacket(packet(true, 350.5, 40))
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if !p.Sync || p.AngleDeg != 350.5 || p.DistCM != 40 || p.Signal != 100 {
		t.Fatalf("point=%+v", p)
	}

	bad := packet(false, 10, 50)
	bad[6]++
	if _, err := DecodePacket(bad); !errors.Is(err, ErrChecksum) {
		t.Fatalf("err=%v want checksum", err)
	}

	flagged := packet(false, 10, 50)
	flagged[0] |= 0x02
	flagged[6] += 2
	if _, err := DecodePacket(flagged); err == nil || !strings.Contains(err.Error(), "error flags") {
		t.Fatalf("err=%v want error flags", err)
	}
}

func TestSweepMinWraps(t *testing.T) {
	var s Sweep
	s[350] = 40
	s[5] = 90
	s[20] = 10
	if d, ok := s.Min(-15, 15); !ok || d != 40 {
		t.Fatalf("min=%d ok=%v want 40", d, ok)
	}
	if _, ok := s.Min(100, 200); ok {
		t.Fatalf("expected empty window")
	}
	if d, ok := s.Min(0, 30); !ok || d != 10 {
		t.Fatalf("min=%d ok=%v want 10", d, ok)
	}
}

func revolution() []byte {
	var buf bytes.Buffer
	for _, p := range []struct {
		sync  bool
		angle float64
		dist  int
	}{
		{true, 0, 100},
		{false, 10, 50},
		{false, 350, 40},
		{false, 30, 200},
		{true, 0, 120},
	} {
		buf.Write(packet(p.sync, p.angle, p.dist))
	}
	return buf.Bytes()
}

func TestReadResyncsAndPublishesRevolution(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(Config{})
	s.now = func() time.Time { return now }

	if got := s.MinDistance(avc.ZoneFront); got != avc.RangeMax {
		t.Fatalf("before data front=%d", got)
	}

	stream := append([]byte{0x55}, revolution()...)
	err := s.read(context.Background(), bytes.NewReader(stream))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("read err=%v want EOF", err)
	}

	if got := s.MinDistance(avc.ZoneFront); got != 40 {
		t.Fatalf("front=%d want 40", got)
	}
	if got := s.MinDistance(avc.ZoneFrontRight); got != 200 {
		t.Fatalf("right=%d want 200", got)
	}
	if got := s.MinDistance(avc.ZoneFrontLeft); got != avc.RangeMax {
		t.Fatalf("left=%d want clear", got)
	}
	snap := s.Snapshot()
	if snap.Revolutions != 1 || snap.Points != 4 || snap.BadPackets == 0 {
		t.Fatalf("snapshot=%+v", snap)
	}

	now = now.Add(2 * time.Second)
	if got := s.MinDistance(avc.ZoneFront); got != avc.RangeMax {
		t.Fatalf("stale front=%d want clear", got)
	}
}

func TestMinDistanceClampsFarReturns(t *testing.T) {
	s := New(Config{})
	s.Add(Point{Sync: true, AngleDeg: 0, DistCM: 1200})
	s.Add(Point{Sync: true, AngleDeg: 0, DistCM: 1200})
	if got := s.MinDistance(avc.ZoneFront); got != avc.RangeMax {
		t.Fatalf("front=%d want %d", got, avc.RangeMax)
	}
}

type fakePort struct {
	mu      sync.Mutex
	r       io.Reader
	written bytes.Buffer
	closed  chan struct{}
}

func newFakePort(data []byte) *fakePort {
	return &fakePort{r: bytes.NewReader(data), closed: make(chan struct{})}
}

func (f *fakePort) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		<-f.closed
		return 0, io.EOF
	}
	return n, err
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakePort) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakePort) sent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func TestStartStreamsAndClose(t *testing.T) {
	prev := openSerial
	t.Cleanup(func() { openSerial = prev })

	port := newFakePort(append([]byte("DS00\x00\n"), revolution()...))
	openSerial = func(device string, baud int) (serialport.Port, error) {
		if device != "/dev/ttyUSB1" || baud != 115200 {
			t.Errorf("open device=%s baud=%d", device, baud)
		}
		return port, nil
	}

	s := New(Config{Device: "/dev/ttyUSB1"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Revolutions == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no revolution")
		}
		time.Sleep(2 * time.Millisecond)
	}
	s.Close()
	if got := port.sent(); got != "DS\nDX\n" {
		t.Fatalf("sent=%q", got)
	}
}

func TestStartRejectsRefusedStream(t *testing.T) {
	prev := openSerial
	t.Cleanup(func() { openSerial = prev })

	port := newFakePort([]byte("DS11\x00\n"))
	openSerial = func(string, int) (serialport.Port, error) { return port, nil }

	s := New(Config{Device: "/dev/ttyUSB1"})
	err := s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stream refused") {
		t.Fatalf("err=%v", err)
	}
}
