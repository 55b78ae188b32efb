//go:build linux

package spi

import (
	"os"
	"strings"
	"testing"
	"unsafe"
)

func TestTransferLayoutMatchesKernel(t *testing.T) {
	if got := unsafe.Sizeof(transfer{}); got != 32 {
		t.Fatalf("sizeof(transfer)=%d want 32", got)
	}
}

func TestTxValidatesBuffers(t *testing.T) {
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	defer f.Close()
	d := &Dev{f: f, path: "/dev/null", cfg: Config{}.withDefaults()}

	if err := d.Tx(nil, nil); err != nil {
		t.Fatalf("empty Tx err=%v", err)
	}
	err = d.Tx([]byte{1, 2}, make([]byte, 1))
	if err == nil || !strings.Contains(err.Error(), "rx len") {
		t.Fatalf("err=%v want rx len mismatch", err)
	}
}

func TestTxOnClosedDev(t *testing.T) {
	var d Dev
	if err := d.Tx([]byte{1}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{SpeedHz: 20000}.withDefaults()
	if c.BitsPerWord != 8 || c.SpeedHz != 20000 || c.Mode != 0 {
		t.Fatalf("cfg=%+v", c)
	}
}
