package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/config"
	"avc-ng/internal/qik"
)

// runBench starts a single source and prints its value every interval
// until ctx ends.
func runBench(ctx context.Context, w io.Writer, cfg config.Config, kind string, interval time.Duration) error {
	r := &rig{status: make(map[string]func() any)}
	if usesSim(cfg) {
		r.sim = newSimVehicle(cfg)
	}
	defer r.Close()

	var (
		dev  any
		show func()
	)
	switch kind {
	case "gps":
		if err := r.addPosition(cfg.GPS); err != nil {
			return err
		}
		dev = r.devices.Position
		show = func() {
			if loc, ok := r.devices.Position.Position(); ok {
				fmt.Fprintf(w, "GPS: %.6f, %.6f\n", loc.Lat, loc.Lon)
			} else {
				fmt.Fprintln(w, "GPS: N/A")
			}
		}
	case "compass":
		if err := r.addHeading(cfg.Compass); err != nil {
			return err
		}
		dev = r.devices.Heading
		show = func() {
			if h, ok := r.devices.Heading.Heading(); ok {
				fmt.Fprintf(w, "Compass: %.1f\n", h)
			} else {
				fmt.Fprintln(w, "Compass: N/A")
			}
		}
	case "switch":
		r.addKillSwitch(cfg.KillSwitch)
		if r.devices.KillSwitch == nil {
			return fmt.Errorf("killswitch.source is none")
		}
		dev = r.devices.KillSwitch
		show = func() {
			run, ok := r.devices.KillSwitch.State()
			switch {
			case !ok:
				fmt.Fprintln(w, "Switch: N/A")
			case run:
				fmt.Fprintln(w, "Switch: run")
			default:
				fmt.Fprintln(w, "Switch: stop")
			}
		}
	default:
		return fmt.Errorf("unknown bench source %q", kind)
	}

	if s, ok := dev.(avc.Starter); ok {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			show()
		}
	}
}

// runMotorCheck talks to the motor controller without driving: firmware,
// error byte and, on a 2s12v10, current draw.
func runMotorCheck(ctx context.Context, w io.Writer, cfg config.Config) error {
	if cfg.Motors.Driver != "qik" {
		return fmt.Errorf("motors.driver must be 'qik' for a motor check")
	}
	r := &rig{status: make(map[string]func() any)}
	defer r.Close()
	if err := r.addMotors(cfg.Motors, true); err != nil {
		return err
	}
	if err := r.qik.Start(ctx); err != nil {
		return err
	}

	fw, err := r.qik.FirmwareVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Model: %s\n", cfg.Motors.Model)
	fmt.Fprintf(w, "Firmware: %c\n", fw)

	eb, err := r.qik.Errors()
	if err != nil {
		return err
	}
	if errs := qik.DescribeErrors(eb); len(errs) > 0 {
		fmt.Fprintf(w, "Errors: %s\n", strings.Join(errs, ", "))
	} else {
		fmt.Fprintln(w, "Errors: none")
	}

	for m := 0; m < 2; m++ {
		ma, err := r.qik.CurrentMilliamps(m)
		if err != nil {
			fmt.Fprintf(w, "M%d current: N/A (%v)\n", m, err)
			continue
		}
		fmt.Fprintf(w, "M%d current: %d mA\n", m, ma)
	}
	return nil
}
