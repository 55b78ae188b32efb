// Package serialport opens the vehicle's UART devices: GNSS receiver,
// compass, scanning rangefinder and motor controller.
package serialport

import (
	"fmt"
	"io"
	"sort"
	"strings"

	serial "go.bug.st/serial"
)

// Port is what device drivers need from an open port.
type Port interface {
	io.ReadWriteCloser
}

// Test seam.
var openFn = func(device string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

var listFn = serial.GetPortsList

// Open opens device at baud, 8N1, raw.
func Open(device string, baud int) (Port, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil, fmt.Errorf("serialport: device is empty")
	}
	if baud <= 0 {
		return nil, fmt.Errorf("serialport: invalid baud %d", baud)
	}
	p, err := openFn(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s baud=%d: %w", device, baud, err)
	}
	return p, nil
}

// Detect returns the first USB CDC/ACM or USB serial adapter, or "" when
// there is none.
func Detect() string {
	ports, err := listFn()
	if err != nil {
		return ""
	}
	sort.Strings(ports)
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for _, p := range ports {
			if strings.HasPrefix(p, prefix) {
				return p
			}
		}
	}
	return ""
}
