// Package qik drives a Pololu qik dual motor controller over its serial
// compact protocol. M0 is the left wheel and M1 the right.
package qik

import "fmt"

type Model int

const (
	Model2s12v10 Model = iota
	Model2s9v1
)

func ParseModel(s string) (Model, error) {
	switch s {
	case "", "2s12v10":
		return Model2s12v10, nil
	case "2s9v1":
		return Model2s9v1, nil
	default:
		return 0, fmt.Errorf("qik: unknown model %q", s)
	}
}

func (m Model) String() string {
	if m == Model2s9v1 {
		return "2s9v1"
	}
	return "2s12v10"
}

const (
	autobaud = 0xAA

	cmdFirmwareVersion = 0x81
	cmdErrorByte       = 0x82
	cmdGetConfig       = 0x83
	cmdSetConfig       = 0x84

	// Brake on the 2s12v10, coast on the 2s9v1.
	cmdM0Stop = 0x86
	cmdM1Stop = 0x87

	cmdM0Forward = 0x88
	cmdM0Reverse = 0x8A
	cmdM1Forward = 0x8C
	cmdM1Reverse = 0x8E
	// The 8-bit variants add 128 to the data byte.
	eightBit = 0x01

	cmdM0Current = 0x90
	cmdM1Current = 0x91
	cmdM0Speed   = 0x92
	cmdM1Speed   = 0x93
)

// Configuration parameters.
const (
	ParamDeviceID            = 0
	ParamPWM                 = 1
	ParamShutdownOnError     = 2
	ParamSerialTimeout       = 3
	ParamM0Acceleration      = 4
	ParamM1Acceleration      = 5
	ParamM0BrakeDuration     = 6
	ParamM1BrakeDuration     = 7
	ParamM0CurrentLimitDiv2  = 8
	ParamM1CurrentLimitDiv2  = 9
	ParamM0CurrentLimitResp  = 10
	ParamM1CurrentLimitResp  = 11
	CurrentMilliampsPerCount = 150
)

// Error byte bits.
const (
	ErrM0Fault        = 1 << 0
	ErrM1Fault        = 1 << 1
	ErrM0OverCurrent  = 1 << 2
	ErrM1OverCurrent  = 1 << 3
	ErrSerialHardware = 1 << 4
	ErrCRC            = 1 << 5
	ErrFormat         = 1 << 6
	ErrTimeout        = 1 << 7
)

// SpeedCommand encodes a signed speed for motor 0 or 1. Magnitudes above
// 127 use the 8-bit command; anything beyond 255 is clamped.
func SpeedCommand(motor int, speed int) []byte {
	reverse := speed < 0
	if reverse {
		speed = -speed
	}
	if speed > 255 {
		speed = 255
	}
	var cmd byte = cmdM0Forward
	if motor == 1 {
		cmd = cmdM1Forward
	}
	if reverse {
		cmd += cmdM0Reverse - cmdM0Forward
	}
	if speed > 127 {
		return []byte{cmd | eightBit, byte(speed - 128)}
	}
	return []byte{cmd, byte(speed)}
}

// BrakeCommand encodes a 2s12v10 brake of 0..127.
func BrakeCommand(motor int, brake int) []byte {
	if brake < 0 {
		brake = 0
	}
	if brake > 127 {
		brake = 127
	}
	if motor == 1 {
		return []byte{cmdM1Stop, byte(brake)}
	}
	return []byte{cmdM0Stop, byte(brake)}
}

// CoastCommand encodes a 2s9v1 coast.
func CoastCommand(motor int) []byte {
	if motor == 1 {
		return []byte{cmdM1Stop}
	}
	return []byte{cmdM0Stop}
}

// SetConfigCommand encodes a parameter write including its unlock trailer.
func SetConfigCommand(param, value byte) []byte {
	return []byte{cmdSetConfig, param, value, 0x55, 0x2A}
}

// DescribeErrors names the bits set in an error byte.
func DescribeErrors(b byte) []string {
	names := []struct {
		bit  byte
		name string
	}{
		{ErrM0Fault, "m0_fault"},
		{ErrM1Fault, "m1_fault"},
		{ErrM0OverCurrent, "m0_over_current"},
		{ErrM1OverCurrent, "m1_over_current"},
		{ErrSerialHardware, "serial_hardware"},
		{ErrCRC, "crc"},
		{ErrFormat, "format"},
		{ErrTimeout, "timeout"},
	}
	var out []string
	for _, n := range names {
		if b&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}
