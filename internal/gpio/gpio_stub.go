//go:build !linux

package gpio

import "fmt"

func OpenInput(chip string, pin int, activeLow bool) (Input, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func OpenOutput(chip string, pin int, initial int) (Output, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}
