// Package i2c is a minimal Linux /dev/i2c-* client used by the on-board
// IMU compass.
package i2c

// RegIO is the register access a sensor driver needs. *Dev implements it;
// drivers take the interface so tests can use fakes.
type RegIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}
