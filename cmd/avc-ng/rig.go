package main

import (
	"fmt"
	"log"

	"avc-ng/internal/avc"
	"avc-ng/internal/compass"
	"avc-ng/internal/config"
	"avc-ng/internal/gps"
	"avc-ng/internal/killswitch"
	"avc-ng/internal/lidar"
	"avc-ng/internal/nav"
	"avc-ng/internal/qik"
	"avc-ng/internal/sensors/octasonic"
	"avc-ng/internal/sim"
	"avc-ng/internal/web"
)

// rig is the set of device services a config selects. Services are created
// here but started by the runner, so a failing device aborts before any
// wheel command is sent.
type rig struct {
	devices avc.Devices
	// sim is set when any source is "sim"; every sim source shares it.
	sim     *sim.Vehicle
	qik     *qik.Controller
	status  map[string]func() any
	closers []func()
}

func (r *rig) addCloser(fn func()) { r.closers = append(r.closers, fn) }

// Close releases devices in reverse order of creation.
func (r *rig) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// register exposes every device snapshot on /api/status.
func (r *rig) register(st *web.Status) {
	for name, fn := range r.status {
		st.AddDevice(name, fn)
	}
}

func usesSim(cfg config.Config) bool {
	return cfg.GPS.Source == "sim" || cfg.Compass.Source == "sim" ||
		cfg.Ranging.Source == "sim" || cfg.Motors.Driver == "sim" ||
		cfg.KillSwitch.Source == "sim"
}

// simStart places the simulated vehicle 20m south of the first waypoint,
// facing it, unless the config gives a start.
func simStart(cfg config.Config) (nav.Location, float64) {
	if cfg.Sim.StartLatDeg != 0 || cfg.Sim.StartLonDeg != 0 {
		return nav.Location{Lat: cfg.Sim.StartLatDeg, Lon: cfg.Sim.StartLonDeg}, cfg.Sim.StartHeadingDeg
	}
	if len(cfg.Course.Waypoints) == 0 {
		return nav.Location{}, cfg.Sim.StartHeadingDeg
	}
	return cfg.Course.Waypoints[0].Location().Offset(-20, 0), 0
}

func newSimVehicle(cfg config.Config) *sim.Vehicle {
	start, heading := simStart(cfg)
	obstacles := make([]sim.Obstacle, 0, len(cfg.Sim.Obstacles))
	for _, o := range cfg.Sim.Obstacles {
		obstacles = append(obstacles, sim.Obstacle{
			Center:  nav.Location{Lat: o.LatDeg, Lon: o.LonDeg},
			RadiusM: o.RadiusM,
		})
	}
	return sim.NewVehicle(sim.VehicleConfig{
		Start:          start,
		HeadingDeg:     heading,
		MaxSpeedMPS:    cfg.Sim.MaxSpeedMPS,
		TrackM:         cfg.Sim.TrackM,
		Obstacles:      obstacles,
		FrontHalfWidth: cfg.Ranging.FrontHalfWidth,
		SideWidth:      cfg.Ranging.SideWidth,
	})
}

func newRig(cfg config.Config) (*rig, error) {
	r := &rig{status: make(map[string]func() any)}

	if usesSim(cfg) {
		r.sim = newSimVehicle(cfg)
		v := r.sim
		r.status["sim"] = func() any { return v.Snapshot() }
		log.Printf("sim vehicle start=%s obstacles=%d", v.Snapshot().Position, len(cfg.Sim.Obstacles))
	}

	if err := r.addPosition(cfg.GPS); err != nil {
		return nil, err
	}
	if err := r.addHeading(cfg.Compass); err != nil {
		return nil, err
	}
	if err := r.addRanges(cfg.Ranging, cfg.Settings.SampleCount); err != nil {
		return nil, err
	}
	if err := r.addMotors(cfg.Motors, *cfg.Settings.EnableMotors); err != nil {
		return nil, err
	}
	r.addKillSwitch(cfg.KillSwitch)
	return r, nil
}

func (r *rig) addPosition(c config.GPSConfig) error {
	if c.Source == "sim" {
		r.devices.Position = r.sim
		return nil
	}
	if !c.Enable {
		return fmt.Errorf("gps.enable must be true to run a course")
	}
	svc := gps.New(gps.Config{
		Enable:     c.Enable,
		Source:     c.Source,
		GPSDAddr:   c.GPSDAddr,
		Device:     c.Device,
		Baud:       c.Baud,
		StaleAfter: c.StaleAfter,
	})
	r.devices.Position = svc
	r.status["gps"] = func() any { return svc.Snapshot() }
	r.addCloser(svc.Close)
	return nil
}

func (r *rig) addHeading(c config.CompassConfig) error {
	switch c.Source {
	case "sim":
		r.devices.Heading = r.sim
		return nil
	case "icm20948":
		cfg := compass.IMUConfig{
			Enable:      true,
			I2CBus:      c.I2CBus,
			Poll:        c.Poll,
			StaleAfter:  c.StaleAfter,
			Declination: c.Declination,
		}
		copy(cfg.HardIron[:], c.HardIron)
		svc := compass.NewIMU(cfg)
		r.devices.Heading = svc
		r.status["compass"] = func() any { return svc.Snapshot() }
		r.addCloser(svc.Close)
		return nil
	}
	if !c.Enable {
		return fmt.Errorf("compass.enable must be true to run a course")
	}
	svc := compass.New(compass.Config{
		Enable:      c.Enable,
		Device:      c.Device,
		Baud:        c.Baud,
		StaleAfter:  c.StaleAfter,
		Declination: c.Declination,
	})
	r.devices.Heading = svc
	r.status["compass"] = func() any { return svc.Snapshot() }
	r.addCloser(svc.Close)
	return nil
}

func (r *rig) addRanges(c config.RangingConfig, samples int) error {
	switch c.Source {
	case "none":
		return nil
	case "sim":
		r.devices.Ranges = r.sim
	case "octasonic":
		svc := octasonic.New(octasonic.Config{
			Device:       c.SPIDevice,
			SpeedHz:      c.SPISpeedHz,
			SensorCount:  c.SensorCount,
			Zones:        [3]int{c.ZoneSensors[0], c.ZoneSensors[1], c.ZoneSensors[2]},
			Samples:      samples,
			PollInterval: c.PollInterval,
		})
		r.devices.Ranges = svc
		r.status["ranging"] = func() any { return svc.Snapshot() }
		r.addCloser(svc.Close)
	case "lidar":
		svc := lidar.New(lidar.Config{
			Device:         c.LidarDevice,
			Baud:           c.LidarBaud,
			FrontHalfWidth: c.FrontHalfWidth,
			SideWidth:      c.SideWidth,
		})
		r.devices.Ranges = svc
		r.status["ranging"] = func() any { return svc.Snapshot() }
		r.addCloser(svc.Close)
	default:
		return fmt.Errorf("unknown ranging source %q", c.Source)
	}
	return nil
}

func (r *rig) addMotors(c config.MotorsConfig, enable bool) error {
	switch c.Driver {
	case "sim":
		r.devices.Motors = r.sim
		return nil
	case "none":
		r.devices.Motors = &logActuator{}
		return nil
	}
	model, err := qik.ParseModel(c.Model)
	if err != nil {
		return err
	}
	ctl := qik.New(qik.Config{
		Device:   c.Device,
		Baud:     c.Baud,
		Model:    model,
		GPIOChip: c.GPIOChip,
		ResetPin: c.ResetPin,
		DryRun:   !enable,
	})
	r.qik = ctl
	r.devices.Motors = ctl
	r.status["motors"] = func() any { return ctl.Snapshot() }
	r.addCloser(ctl.Close)
	return nil
}

func (r *rig) addKillSwitch(c config.KillSwitchConfig) {
	switch c.Source {
	case "none":
	case "sim":
		// A bench run has nobody to flip the switch.
		r.sim.SetSwitch(true)
		r.devices.KillSwitch = r.sim
	case "gpio":
		sw := killswitch.New(killswitch.Config{
			Chip:      c.GPIOChip,
			Pin:       c.Pin,
			ActiveLow: *c.ActiveLow,
		})
		r.devices.KillSwitch = sw
		r.status["killswitch"] = func() any { return sw.Snapshot() }
		r.addCloser(sw.Close)
	}
}

// logActuator stands in for motors when none are fitted: it logs each
// change of wheel command and drives nothing.
type logActuator struct {
	last [2]avc.MotionCommand
	have bool
}

func (a *logActuator) Apply(left, right avc.MotionCommand) {
	cmd := [2]avc.MotionCommand{left, right}
	if a.have && cmd == a.last {
		return
	}
	a.last, a.have = cmd, true
	log.Printf("motors none left=%s right=%s", left, right)
}
