package serialport

import (
	"errors"
	"strings"
	"testing"

	serial "go.bug.st/serial"
)

type nopPort struct{}

func (nopPort) Read(p []byte) (int, error)  { return 0, nil }
func (nopPort) Write(p []byte) (int, error) { return len(p), nil }
func (nopPort) Close() error                { return nil }

func TestOpenPassesMode(t *testing.T) {
	prev := openFn
	t.Cleanup(func() { openFn = prev })

	var gotDev string
	var gotMode serial.Mode
	openFn = func(device string, mode *serial.Mode) (Port, error) {
		gotDev, gotMode = device, *mode
		return nopPort{}, nil
	}
	if _, err := Open(" /dev/ttyAMA0 ", 57600); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotDev != "/dev/ttyAMA0" || gotMode.BaudRate != 57600 || gotMode.DataBits != 8 {
		t.Fatalf("device=%q mode=%+v", gotDev, gotMode)
	}
}

func TestOpenWrapsError(t *testing.T) {
	prev := openFn
	t.Cleanup(func() { openFn = prev })
	openFn = func(string, *serial.Mode) (Port, error) { return nil, errors.New("busy") }

	_, err := Open("/dev/ttyUSB0", 9600)
	if err == nil || !strings.Contains(err.Error(), "/dev/ttyUSB0") || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("err=%v", err)
	}
	if _, err := Open("", 9600); err == nil {
		t.Fatalf("expected error for empty device")
	}
}

func TestDetectPrefersACM(t *testing.T) {
	prev := listFn
	t.Cleanup(func() { listFn = prev })
	listFn = func() ([]string, error) {
		return []string{"/dev/ttyS0", "/dev/ttyUSB1", "/dev/ttyACM0"}, nil
	}
	if got := Detect(); got != "/dev/ttyACM0" {
		t.Fatalf("Detect=%q", got)
	}
	listFn = func() ([]string, error) { return []string{"/dev/ttyS0"}, nil }
	if got := Detect(); got != "" {
		t.Fatalf("Detect=%q want empty", got)
	}
}
