// Package icm20948 drives the ICM-20948 IMU as a tilt-compensated compass:
// the accelerometer gives roll and pitch, and the AK09916 magnetometer on the
// same package, reached through the I2C bypass, gives the field vector.
package icm20948

import (
	"errors"
	"fmt"
	"math"
	"time"

	"avc-ng/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x68
	addrMag     = 0x0C

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D // accel then gyro, big-endian

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fsGyro250dps = 0x00
	fsAccel4g    = 0x02

	// AK09916.
	magRegWIA2  = 0x01
	magWIA2Val  = 0x09
	magRegHXL   = 0x11 // HXL..HZH little-endian, then TMPS, ST2
	magRegCNTL2 = 0x31
	magRegCNTL3 = 0x32
	magCont100  = 0x08
	magSoftRst  = 0x01
	magST2HOFL  = 0x08

	magScaleUT = 0.15
)

// ErrMagOverflow is returned when the magnetometer saturated, usually from a
// nearby motor or magnet.
var ErrMagOverflow = errors.New("icm20948: magnetometer overflow")

type Sample struct {
	Time time.Time
	// Accel in G.
	Ax, Ay, Az float64
	// Gyro in deg/s.
	Gx, Gy, Gz float64
}

// MagSample is the field in microtesla, rotated into the accelerometer's
// axes.
type MagSample struct {
	Time       time.Time
	Mx, My, Mz float64
}

type Device struct {
	dev i2c.RegIO
	mag i2c.RegIO

	curBank    byte
	scaleAccel float64
	scaleGyro  float64
}

func DefaultAddress() uint16 { return addrDefault }

func MagAddress() uint16 { return addrMag }

// New probes and configures the IMU. mag may be nil when only accel and
// gyro are needed.
func New(dev, mag i2c.RegIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, mag: mag, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	if mag != nil {
		if err := d.initMag(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake with the auto-selected PLL clock.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// 1125Hz / (div+1) = 50Hz.
	div := byte(1125/50 - 1)
	_ = d.dev.WriteReg(regGyroSmplrt, div)
	_ = d.dev.WriteReg(regAccelSmplrt2, div)

	if err := d.dev.WriteReg(regGyroConfig, fsGyro250dps); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = 4.0 / 32768.0
	d.scaleGyro = 250.0 / 32768.0
	return nil
}

func (d *Device) initMag() error {
	if err := d.dev.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: enable bypass failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	wia, err := d.mag.ReadRegU8(magRegWIA2)
	if err != nil {
		return fmt.Errorf("icm20948: magnetometer probe failed: %w", err)
	}
	if wia != magWIA2Val {
		return fmt.Errorf("icm20948: magnetometer id=0x%02X want 0x%02X", wia, magWIA2Val)
	}
	if err := d.mag.WriteReg(magRegCNTL3, magSoftRst); err != nil {
		return fmt.Errorf("icm20948: magnetometer reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := d.mag.WriteReg(magRegCNTL2, magCont100); err != nil {
		return fmt.Errorf("icm20948: magnetometer mode failed: %w", err)
	}
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	var buf [12]byte
	if err := d.dev.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}
	be := func(i int) float64 { return float64(int16(uint16(buf[i])<<8 | uint16(buf[i+1]))) }

	return Sample{
		Time: time.Now(),
		Ax:   be(0) * d.scaleAccel,
		Ay:   be(2) * d.scaleAccel,
		Az:   be(4) * d.scaleAccel,
		Gx:   be(6) * d.scaleGyro,
		Gy:   be(8) * d.scaleGyro,
		Gz:   be(10) * d.scaleGyro,
	}, nil
}

// ReadMag reads one magnetometer sample. Reading through ST2 releases the
// data registers for the next measurement.
func (d *Device) ReadMag() (MagSample, error) {
	if d == nil || d.mag == nil {
		return MagSample{}, fmt.Errorf("icm20948: magnetometer not enabled")
	}
	var buf [8]byte
	if err := d.mag.ReadReg(magRegHXL, buf[:]); err != nil {
		return MagSample{}, fmt.Errorf("icm20948: read magnetometer failed: %w", err)
	}
	if buf[7]&magST2HOFL != 0 {
		return MagSample{}, ErrMagOverflow
	}
	le := func(i int) float64 { return float64(int16(uint16(buf[i]) | uint16(buf[i+1])<<8)) }

	// The AK09916 Y and Z axes point opposite to the accelerometer's.
	return MagSample{
		Time: time.Now(),
		Mx:   le(0) * magScaleUT,
		My:   -le(2) * magScaleUT,
		Mz:   -le(4) * magScaleUT,
	}, nil
}

// Heading returns the tilt-compensated heading in degrees [0,360) relative
// to magnetic north. Body axes are x forward, y right, z down, with the
// accelerometer reading +1g on z when level.
func Heading(a Sample, m MagSample) float64 {
	roll := math.Atan2(a.Ay, a.Az)
	pitch := math.Atan2(-a.Ax, math.Hypot(a.Ay, a.Az))

	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	xh := m.Mx*cp + m.My*sr*sp + m.Mz*cr*sp
	yh := m.My*cr - m.Mz*sr

	deg := math.Atan2(-yh, xh) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
