// Package spi is a minimal Linux spidev client.
package spi

// Config is applied when the device is opened. Zero fields take defaults:
// mode 0, 8 bits per word, 500kHz.
type Config struct {
	Mode        uint8
	BitsPerWord uint8
	SpeedHz     uint32
}

func (c Config) withDefaults() Config {
	if c.BitsPerWord == 0 {
		c.BitsPerWord = 8
	}
	if c.SpeedHz == 0 {
		c.SpeedHz = 500000
	}
	return c
}
