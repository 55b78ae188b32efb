package qik

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/gpio"
	"avc-ng/internal/serialport"
)

func TestSpeedCommand(t *testing.T) {
	cases := []struct {
		motor, speed int
		want         []byte
	}{
		{0, 100, []byte{0x88, 100}},
		{0, -100, []byte{0x8A, 100}},
		{1, 127, []byte{0x8C, 127}},
		{1, -127, []byte{0x8E, 127}},
		{0, 200, []byte{0x89, 72}},
		{1, -300, []byte{0x8F, 127}},
		{0, 0, []byte{0x88, 0}},
	}
	for _, tc := range cases {
		got := SpeedCommand(tc.motor, tc.speed)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("SpeedCommand(%d,%d)=% X want % X", tc.motor, tc.speed, got, tc.want)
		}
	}
}

func TestBrakeCoastAndConfigCommands(t *testing.T) {
	if got := BrakeCommand(1, 200); !bytes.Equal(got, []byte{0x87, 127}) {
		t.Fatalf("brake=% X", got)
	}
	if got := CoastCommand(0); !bytes.Equal(got, []byte{0x86}) {
		t.Fatalf("coast=% X", got)
	}
	if got := SetConfigCommand(ParamSerialTimeout, 5); !bytes.Equal(got, []byte{0x84, 3, 5, 0x55, 0x2A}) {
		t.Fatalf("set config=% X", got)
	}
	if got := DescribeErrors(ErrM1Fault | ErrTimeout); strings.Join(got, ",") != "m1_fault,timeout" {
		t.Fatalf("errors=%v", got)
	}
}

type fakePort struct {
	written bytes.Buffer
	reply   *bytes.Reader
	err     error
	closed  bool
}

func (f *fakePort) Read(p []byte) (int, error) { return f.reply.Read(p) }

func (f *fakePort) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.written.Write(p)
}

func (f *fakePort) Close() error { f.closed = true; return nil }

type fakeOutput struct {
	values []int
	closed bool
}

func (f *fakeOutput) SetValue(v int) error { f.values = append(f.values, v); return nil }
func (f *fakeOutput) Close() error         { f.closed = true; return nil }

func withFakes(t *testing.T, port *fakePort, out *fakeOutput) {
	t.Helper()
	prevSerial, prevOut, prevSleep := openSerial, openOutput, sleep
	t.Cleanup(func() { openSerial, openOutput, sleep = prevSerial, prevOut, prevSleep })
	sleep = func(time.Duration) {}
	openSerial = func(device string, baud int) (serialport.Port, error) {
		if device != "/dev/ttyAMA0" || baud != 57600 {
			t.Errorf("open device=%s baud=%d", device, baud)
		}
		return port, nil
	}
	openOutput = func(chip string, pin int, initial int) (gpio.Output, error) {
		if pin != 4 || initial != 0 {
			t.Errorf("reset pin=%d initial=%d", pin, initial)
		}
		return out, nil
	}
}

func TestStartResetsAndAutobauds(t *testing.T) {
	port := &fakePort{}
	out := &fakeOutput{}
	withFakes(t, port, out)

	c := New(Config{Device: "/dev/ttyAMA0", ResetPin: 4})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(out.values) != 1 || out.values[0] != 1 || !out.closed {
		t.Fatalf("reset line values=%v closed=%v", out.values, out.closed)
	}
	if !bytes.Equal(port.written.Bytes(), []byte{0xAA}) {
		t.Fatalf("written=% X", port.written.Bytes())
	}
}

func TestApplyEncodesPerModel(t *testing.T) {
	cases := []struct {
		model       Model
		left, right avc.MotionCommand
		want        []byte
	}{
		{Model2s12v10, avc.Speed(100), avc.Speed(-50), []byte{0x88, 100, 0x8E, 50}},
		{Model2s12v10, avc.Brake(127), avc.Brake(127), []byte{0x86, 127, 0x87, 127}},
		{Model2s12v10, avc.Coast(), avc.Coast(), []byte{0x88, 0, 0x8C, 0}},
		{Model2s9v1, avc.Brake(127), avc.Coast(), []byte{0x86, 0x87}},
	}
	for _, tc := range cases {
		port := &fakePort{}
		withFakes(t, port, &fakeOutput{})
		c := New(Config{Device: "/dev/ttyAMA0", Model: tc.model})
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		port.written.Reset()
		c.Apply(tc.left, tc.right)
		if !bytes.Equal(port.written.Bytes(), tc.want) {
			t.Fatalf("%s %s/%s written=% X want % X", tc.model, tc.left, tc.right, port.written.Bytes(), tc.want)
		}
	}
}

func TestApplyRecordsWriteError(t *testing.T) {
	port := &fakePort{}
	withFakes(t, port, &fakeOutput{})
	c := New(Config{Device: "/dev/ttyAMA0"})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	port.err = errors.New("unplugged")
	c.Apply(avc.Speed(10), avc.Speed(10))
	snap := c.Snapshot()
	if snap.LastError != "unplugged" || snap.Commands != 1 || snap.Left != "Speed(10)" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	prev := openSerial
	t.Cleanup(func() { openSerial = prev })
	openSerial = func(string, int) (serialport.Port, error) {
		t.Fatalf("dry run opened the port")
		return nil, nil
	}
	c := New(Config{DryRun: true})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Apply(avc.Speed(127), avc.Speed(127))
	if snap := c.Snapshot(); !snap.DryRun || snap.Right != "Speed(127)" || snap.LastError != "" {
		t.Fatalf("snapshot=%+v", snap)
	}
	c.Close()
}

func TestQueries(t *testing.T) {
	port := &fakePort{}
	withFakes(t, port, &fakeOutput{})
	c := New(Config{Device: "/dev/ttyAMA0"})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	port.written.Reset()
	port.reply = bytes.NewReader([]byte{'2', 0x00, 10, 1})

	if v, err := c.FirmwareVersion(); err != nil || v != '2' {
		t.Fatalf("firmware=%v err=%v", v, err)
	}
	if err := c.SetConfigParameter(ParamSerialTimeout, 0); err != nil {
		t.Fatalf("SetConfigParameter: %v", err)
	}
	if ma, err := c.CurrentMilliamps(1); err != nil || ma != 1500 {
		t.Fatalf("current=%d err=%v", ma, err)
	}
	if err := c.SetConfigParameter(ParamPWM, 9); err == nil || !strings.Contains(err.Error(), "rejected code=1") {
		t.Fatalf("err=%v", err)
	}
	want := []byte{0x81, 0x84, 3, 0, 0x55, 0x2A, 0x91, 0x84, 1, 9, 0x55, 0x2A}
	if !bytes.Equal(port.written.Bytes(), want) {
		t.Fatalf("written=% X want % X", port.written.Bytes(), want)
	}
}

func TestCloseBrakes(t *testing.T) {
	port := &fakePort{}
	withFakes(t, port, &fakeOutput{})
	c := New(Config{Device: "/dev/ttyAMA0"})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	port.written.Reset()
	c.Close()
	if !bytes.Equal(port.written.Bytes(), []byte{0x86, 127, 0x87, 127}) || !port.closed {
		t.Fatalf("written=% X closed=%v", port.written.Bytes(), port.closed)
	}
}
