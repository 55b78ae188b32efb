//go:build linux

package spi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux spidev ioctl requests from <linux/spi/spidev.h>.
const (
	iocWrMode        = 0x40016b01
	iocWrBitsPerWord = 0x40016b03
	iocWrMaxSpeedHz  = 0x40046b04
	iocMessage1      = 0x40206b00 // SPI_IOC_MESSAGE(1)
)

// transfer mirrors struct spi_ioc_transfer (32 bytes).
type transfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Dev is an opened spidev node. It is not safe for concurrent transfers.
type Dev struct {
	f    *os.File
	path string
	cfg  Config
}

func Open(path string, cfg Config) (*Dev, error) {
	cfg = cfg.withDefaults()
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spi: open %s: %w", path, err)
	}
	d := &Dev{f: f, path: path, cfg: cfg}

	mode := cfg.Mode
	bits := cfg.BitsPerWord
	speed := cfg.SpeedHz
	for _, set := range []struct {
		name string
		req  uintptr
		arg  unsafe.Pointer
	}{
		{"mode", iocWrMode, unsafe.Pointer(&mode)},
		{"bits per word", iocWrBitsPerWord, unsafe.Pointer(&bits)},
		{"max speed", iocWrMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		if err := d.ioctl(set.req, set.arg); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("spi: set %s on %s: %w", set.name, path, err)
		}
	}
	return d, nil
}

func (d *Dev) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Tx clocks w out and fills r in one full-duplex transfer. r may be nil,
// otherwise it must be as long as w.
func (d *Dev) Tx(w, r []byte) error {
	if d == nil || d.f == nil {
		return errors.New("spi device is closed")
	}
	if len(w) == 0 {
		return nil
	}
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("spi: rx len %d != tx len %d", len(r), len(w))
	}
	tr := transfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		len:         uint32(len(w)),
		speedHz:     d.cfg.SpeedHz,
		bitsPerWord: d.cfg.BitsPerWord,
	}
	if r != nil {
		tr.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	return d.ioctl(iocMessage1, unsafe.Pointer(&tr))
}

// TransferByte sends one byte and returns the byte clocked in with it.
func (d *Dev) TransferByte(b byte) (byte, error) {
	w := [1]byte{b}
	var r [1]byte
	if err := d.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Dev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
