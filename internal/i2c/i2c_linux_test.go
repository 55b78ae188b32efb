//go:build linux

package i2c

import (
	"os"
	"strings"
	"testing"
)

func openNull(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return &Bus{f: f, path: "/dev/null"}
}

func TestDevTx_InvalidAddr(t *testing.T) {
	b := openNull(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0x00, 0x01)
		if err == nil || !strings.Contains(err.Error(), "invalid i2c addr") {
			t.Fatalf("addr=0x%X err=%v want invalid i2c addr", addr, err)
		}
	}
}

func TestDevTx_EmptyIsNoop(t *testing.T) {
	d := openNull(t).Dev(0x0C)
	n, err := d.tx(nil, nil)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestDevImplementsRegIO(t *testing.T) {
	var _ RegIO = (*Dev)(nil)
}

func TestClosedBus(t *testing.T) {
	var b *Bus
	if b.Dev(0x68) != nil {
		t.Fatalf("nil bus returned a device")
	}
	if err := (&Dev{addr: 0x68}).WriteReg(0, 0); err == nil {
		t.Fatalf("expected error on detached device")
	}
}
