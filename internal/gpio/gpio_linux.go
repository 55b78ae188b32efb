//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "avc-ng"

// chipCandidates lists chip first, then the usual Pi chips, then every
// other chip under /dev.
func chipCandidates(chip string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	if chip != "" && !strings.HasPrefix(chip, "/") {
		chip = filepath.Join("/dev", chip)
	}
	add(chip)
	add("/dev/gpiochip0")
	add("/dev/gpiochip4")
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			add(filepath.Join("/dev", e.Name()))
		}
	}
	return out
}

// request finds BCM pin by its "GPIO<n>" line name. If no chip names the
// line, pin is used as a raw offset on the configured chip.
func request(chip string, pin int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	if pin < 0 {
		return nil, nil, fmt.Errorf("gpio: invalid pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)
	opts = append(opts, gpiocdev.WithConsumer(consumer))

	candidates := chipCandidates(chip)
	for _, chipPath := range candidates {
		c, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := c.FindLine(lineName)
		if err != nil {
			_ = c.Close()
			continue
		}
		line, err := c.RequestLine(offset, opts...)
		if err != nil {
			_ = c.Close()
			continue
		}
		return c, line, nil
	}

	if len(candidates) > 0 {
		c, err := gpiocdev.NewChip(candidates[0])
		if err == nil {
			line, err := c.RequestLine(pin, opts...)
			if err == nil {
				return c, line, nil
			}
			_ = c.Close()
		}
	}
	return nil, nil, fmt.Errorf("gpio: line %q not found (or busy)", lineName)
}

type line struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (l *line) Value() (int, error) {
	if l == nil || l.line == nil {
		return 0, fmt.Errorf("gpio: line not initialized")
	}
	return l.line.Value()
}

func (l *line) SetValue(v int) error {
	if l == nil || l.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	return l.line.SetValue(v)
}

func (l *line) Close() error {
	if l == nil || l.line == nil {
		return nil
	}
	err := l.line.Close()
	l.line = nil
	if l.chip != nil {
		_ = l.chip.Close()
		l.chip = nil
	}
	return err
}

// OpenInput requests pin as an input with the pull resistor toward the
// inactive level.
func OpenInput(chip string, pin int, activeLow bool) (Input, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	c, l, err := request(chip, pin, opts...)
	if err != nil {
		return nil, err
	}
	return &line{chip: c, line: l}, nil
}

// OpenOutput requests pin as an output driven to initial.
func OpenOutput(chip string, pin int, initial int) (Output, error) {
	c, l, err := request(chip, pin, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, err
	}
	return &line{chip: c, line: l}, nil
}
