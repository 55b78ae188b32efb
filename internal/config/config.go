package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"avc-ng/internal/avc"
	"avc-ng/internal/nav"
)

type Config struct {
	Course     CourseConfig     `yaml:"course"`
	Settings   SettingsConfig   `yaml:"settings"`
	GPS        GPSConfig        `yaml:"gps"`
	Compass    CompassConfig    `yaml:"compass"`
	Ranging    RangingConfig    `yaml:"ranging"`
	Motors     MotorsConfig     `yaml:"motors"`
	KillSwitch KillSwitchConfig `yaml:"killswitch"`
	Web        WebConfig        `yaml:"web"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Sim        SimConfig        `yaml:"sim"`
	Capture    CaptureConfig    `yaml:"capture"`
}

// CourseConfig holds the waypoints inline or points at a course file
// written by SaveWaypoints.
type CourseConfig struct {
	File      string         `yaml:"file"`
	Waypoints []avc.Waypoint `yaml:"waypoints"`
}

type SettingsConfig struct {
	MaxSpeed         int           `yaml:"max_speed"`
	TurnGain         float64       `yaml:"turn_gain"`
	ObstacleDistance int           `yaml:"obstacle_distance"`
	Tolerance        nav.Tolerance `yaml:"tolerance"`
	SampleCount      int           `yaml:"sample_count"`
	EnableMotors     *bool         `yaml:"enable_motors"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	BrakeDwell       time.Duration `yaml:"brake_dwell"`
	// DefaultAvoid is the avoidance side used when only the front zone is
	// blocked and no turn is planned: "left" or "right".
	DefaultAvoid string `yaml:"default_avoid"`
}

type GPSConfig struct {
	Enable     bool          `yaml:"enable"`
	Source     string        `yaml:"source"`
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	GPSDAddr   string        `yaml:"gpsd_addr"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type CompassConfig struct {
	Enable     bool          `yaml:"enable"`
	Source     string        `yaml:"source"`
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	StaleAfter time.Duration `yaml:"stale_after"`
	// Declination is added to every magnetic reading.
	Declination float64 `yaml:"declination"`

	// icm20948 source.
	I2CBus   string        `yaml:"i2c_bus"`
	Poll     time.Duration `yaml:"poll"`
	HardIron []float64     `yaml:"hard_iron"`
}

type RangingConfig struct {
	Source string `yaml:"source"`

	SPIDevice   string `yaml:"spi_device"`
	SPISpeedHz  uint32 `yaml:"spi_speed_hz"`
	SensorCount int    `yaml:"sensor_count"`
	// ZoneSensors maps front-left, front and front-right to sensor indexes.
	ZoneSensors  []int         `yaml:"zone_sensors"`
	PollInterval time.Duration `yaml:"poll_interval"`

	LidarDevice string `yaml:"lidar_device"`
	LidarBaud   int    `yaml:"lidar_baud"`
	// FrontHalfWidth and SideWidth are the lidar zone windows in degrees.
	FrontHalfWidth float64 `yaml:"front_half_width"`
	SideWidth      float64 `yaml:"side_width"`
}

type MotorsConfig struct {
	Driver   string `yaml:"driver"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	Model    string `yaml:"model"`
	GPIOChip string `yaml:"gpio_chip"`
	// ResetPin is the BCM GPIO wired to the controller reset line. 0 disables.
	ResetPin int `yaml:"reset_pin"`
}

type KillSwitchConfig struct {
	Source    string `yaml:"source"`
	GPIOChip  string `yaml:"gpio_chip"`
	Pin       int    `yaml:"pin"`
	ActiveLow *bool  `yaml:"active_low"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type TelemetryConfig struct {
	Interval time.Duration        `yaml:"interval"`
	Record   RecordConfig         `yaml:"record"`
	UDP      UDPTelemetryConfig   `yaml:"udp"`
	NATS     NATSTelemetryConfig  `yaml:"nats"`
	Redis    RedisTelemetryConfig `yaml:"redis"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type UDPTelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type NATSTelemetryConfig struct {
	Enable  bool   `yaml:"enable"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type RedisTelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
	Key    string `yaml:"key"`
	// Channel, when set, also gets every snapshot published to it.
	Channel string `yaml:"channel"`
}

type SimConfig struct {
	// Start defaults to 20m south of the first waypoint when zero.
	StartLatDeg     float64       `yaml:"start_lat_deg"`
	StartLonDeg     float64       `yaml:"start_lon_deg"`
	StartHeadingDeg float64       `yaml:"start_heading_deg"`
	MaxSpeedMPS     float64       `yaml:"max_speed_mps"`
	TrackM          float64       `yaml:"track_m"`
	Obstacles       []SimObstacle `yaml:"obstacles"`
}

type SimObstacle struct {
	LatDeg  float64 `yaml:"lat_deg"`
	LonDeg  float64 `yaml:"lon_deg"`
	RadiusM float64 `yaml:"radius_m"`
}

type CaptureConfig struct {
	Path string `yaml:"path"`
}

// Load reads, defaults and validates the config at path. A relative
// course.file is resolved against the config's directory.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return parse(path, b)
}

func parse(path string, b []byte) (Config, error) {
	var cfg Config
	if err := decodeStrict(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Course.File != "" {
		if len(cfg.Course.Waypoints) > 0 {
			return Config{}, fmt.Errorf("course.file and course.waypoints cannot both be set")
		}
		file := cfg.Course.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(path), file)
		}
		wps, err := LoadCourse(file)
		if err != nil {
			return Config{}, err
		}
		cfg.Course.Waypoints = wps
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var yamlLinePrefix = regexp.MustCompile(`^line \d+: `)

// decodeStrict unmarshals b rejecting fields the target does not declare.
func decodeStrict(b []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	err := dec.Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	var te *yaml.TypeError
	if errors.As(err, &te) {
		var unknown []string
		for _, e := range te.Errors {
			msg := yamlLinePrefix.ReplaceAllString(e, "")
			if strings.HasPrefix(msg, "field ") && strings.Contains(msg, " not found in type ") {
				unknown = append(unknown, msg)
			}
		}
		if len(unknown) > 0 {
			return fmt.Errorf("config contains unknown fields: %s", strings.Join(unknown, "; "))
		}
	}
	return err
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings. It does no I/O.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	for i, wp := range cfg.Course.Waypoints {
		if !wp.Location().Valid() {
			return fmt.Errorf("course.waypoints[%d] is out of range", i)
		}
		if wp.Tolerance.Lat < 0 || wp.Tolerance.Lon < 0 {
			return fmt.Errorf("course.waypoints[%d].tolerance must be >= 0", i)
		}
	}

	if err := defaultSettings(&cfg.Settings); err != nil {
		return err
	}
	if err := defaultGPS(&cfg.GPS); err != nil {
		return err
	}
	if err := defaultCompass(&cfg.Compass); err != nil {
		return err
	}
	if err := defaultRanging(&cfg.Ranging); err != nil {
		return err
	}
	if err := defaultMotors(&cfg.Motors); err != nil {
		return err
	}
	if err := defaultKillSwitch(&cfg.KillSwitch); err != nil {
		return err
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if err := defaultTelemetry(&cfg.Telemetry); err != nil {
		return err
	}

	// Simulator defaults (safe even if no sim source is selected).
	if cfg.Sim.MaxSpeedMPS <= 0 {
		cfg.Sim.MaxSpeedMPS = 1.5
	}
	if cfg.Sim.TrackM <= 0 {
		cfg.Sim.TrackM = 0.4
	}
	for i, o := range cfg.Sim.Obstacles {
		if o.RadiusM <= 0 {
			return fmt.Errorf("sim.obstacles[%d].radius_m must be > 0", i)
		}
	}

	if cfg.Capture.Path == "" {
		cfg.Capture.Path = "waypoints.yaml"
	}
	return nil
}

func defaultSettings(s *SettingsConfig) error {
	if s.MaxSpeed == 0 {
		s.MaxSpeed = avc.MaxSpeedCommand
	}
	if s.MaxSpeed < 1 || s.MaxSpeed > avc.MaxSpeedCommand {
		return fmt.Errorf("settings.max_speed must be between 1 and 127")
	}
	if s.TurnGain == 0 {
		s.TurnGain = 3
	}
	if s.TurnGain < 0 {
		return fmt.Errorf("settings.turn_gain must be > 0")
	}
	if s.ObstacleDistance == 0 {
		s.ObstacleDistance = 60
	}
	if s.ObstacleDistance < 1 || s.ObstacleDistance > avc.RangeMax {
		return fmt.Errorf("settings.obstacle_distance must be between 1 and 255")
	}
	if s.Tolerance.Lat == 0 {
		s.Tolerance.Lat = nav.DefaultTolerance.Lat
	}
	if s.Tolerance.Lon == 0 {
		s.Tolerance.Lon = nav.DefaultTolerance.Lon
	}
	if s.Tolerance.Lat < 0 || s.Tolerance.Lon < 0 {
		return fmt.Errorf("settings.tolerance must be > 0")
	}
	if s.SampleCount == 0 {
		s.SampleCount = 3
	}
	if s.SampleCount < 1 || s.SampleCount > 16 {
		return fmt.Errorf("settings.sample_count must be between 1 and 16")
	}
	if s.EnableMotors == nil {
		v := true
		s.EnableMotors = &v
	}
	if s.TickInterval <= 0 {
		s.TickInterval = 10 * time.Millisecond
	}
	if s.BrakeDwell <= 0 {
		s.BrakeDwell = 100 * time.Millisecond
	}
	switch s.DefaultAvoid {
	case "":
		s.DefaultAvoid = "left"
	case "left", "right":
	default:
		return fmt.Errorf("settings.default_avoid must be 'left' or 'right'")
	}
	return nil
}

func defaultGPS(g *GPSConfig) error {
	if g.Source == "" {
		g.Source = "nmea"
	}
	if g.Baud <= 0 {
		g.Baud = 9600
	}
	if g.GPSDAddr == "" {
		g.GPSDAddr = "127.0.0.1:2947"
	}
	if g.StaleAfter <= 0 {
		g.StaleAfter = 2 * time.Second
	}
	switch g.Source {
	case "nmea":
		if g.Enable && g.Device == "" {
			return fmt.Errorf("gps.device is required when gps.source is 'nmea'")
		}
	case "gpsd", "sim":
	default:
		return fmt.Errorf("gps.source must be one of: nmea, gpsd, sim")
	}
	return nil
}

func defaultCompass(c *CompassConfig) error {
	if c.Source == "" {
		c.Source = "serial"
	}
	if c.Baud <= 0 {
		c.Baud = 9600
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Second
	}
	if c.Declination <= -180 || c.Declination > 180 {
		return fmt.Errorf("compass.declination must be within (-180, 180]")
	}
	switch c.Source {
	case "serial":
		if c.Enable && c.Device == "" {
			return fmt.Errorf("compass.device is required when compass.source is 'serial'")
		}
	case "icm20948":
		if c.I2CBus == "" {
			c.I2CBus = "/dev/i2c-1"
		}
		if c.Poll <= 0 {
			c.Poll = 20 * time.Millisecond
		}
		if len(c.HardIron) != 0 && len(c.HardIron) != 3 {
			return fmt.Errorf("compass.hard_iron must have exactly 3 values")
		}
	case "sim":
	default:
		return fmt.Errorf("compass.source must be one of: serial, icm20948, sim")
	}
	return nil
}

func defaultRanging(r *RangingConfig) error {
	if r.Source == "" {
		r.Source = "none"
	}
	if r.SPIDevice == "" {
		r.SPIDevice = "/dev/spidev0.0"
	}
	if r.SPISpeedHz == 0 {
		r.SPISpeedHz = 20000
	}
	if r.SensorCount == 0 {
		r.SensorCount = 3
	}
	if r.SensorCount < 1 || r.SensorCount > 8 {
		return fmt.Errorf("ranging.sensor_count must be between 1 and 8")
	}
	if len(r.ZoneSensors) == 0 {
		r.ZoneSensors = []int{2, 1, 0}
	}
	if len(r.ZoneSensors) != 3 {
		return fmt.Errorf("ranging.zone_sensors must list front-left, front and front-right")
	}
	for _, idx := range r.ZoneSensors {
		if idx < 0 || idx >= r.SensorCount {
			return fmt.Errorf("ranging.zone_sensors index %d is outside sensor_count %d", idx, r.SensorCount)
		}
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 20 * time.Millisecond
	}
	if r.LidarBaud <= 0 {
		r.LidarBaud = 115200
	}
	if r.FrontHalfWidth <= 0 {
		r.FrontHalfWidth = 15
	}
	if r.SideWidth <= 0 {
		r.SideWidth = 30
	}
	if r.FrontHalfWidth+r.SideWidth > 180 {
		return fmt.Errorf("ranging.front_half_width + ranging.side_width must be <= 180")
	}
	switch r.Source {
	case "octasonic", "sim", "none":
	case "lidar":
		if r.LidarDevice == "" {
			return fmt.Errorf("ranging.lidar_device is required when ranging.source is 'lidar'")
		}
	default:
		return fmt.Errorf("ranging.source must be one of: octasonic, lidar, sim, none")
	}
	return nil
}

func defaultMotors(m *MotorsConfig) error {
	if m.Driver == "" {
		m.Driver = "none"
	}
	if m.Baud <= 0 {
		m.Baud = 57600
	}
	if m.Model == "" {
		m.Model = "2s12v10"
	}
	if m.GPIOChip == "" {
		m.GPIOChip = "gpiochip0"
	}
	if m.ResetPin < 0 {
		return fmt.Errorf("motors.reset_pin must be >= 0")
	}
	switch m.Model {
	case "2s12v10", "2s9v1":
	default:
		return fmt.Errorf("motors.model must be one of: 2s12v10, 2s9v1")
	}
	switch m.Driver {
	case "qik":
		if m.Device == "" {
			return fmt.Errorf("motors.device is required when motors.driver is 'qik'")
		}
	case "sim", "none":
	default:
		return fmt.Errorf("motors.driver must be one of: qik, sim, none")
	}
	return nil
}

func defaultKillSwitch(k *KillSwitchConfig) error {
	if k.Source == "" {
		k.Source = "none"
	}
	if k.GPIOChip == "" {
		k.GPIOChip = "gpiochip0"
	}
	if k.ActiveLow == nil {
		v := true
		k.ActiveLow = &v
	}
	switch k.Source {
	case "gpio":
		if k.Pin <= 0 {
			return fmt.Errorf("killswitch.pin is required when killswitch.source is 'gpio'")
		}
	case "sim", "none":
	default:
		return fmt.Errorf("killswitch.source must be one of: gpio, sim, none")
	}
	return nil
}

func defaultTelemetry(t *TelemetryConfig) error {
	if t.Interval <= 0 {
		t.Interval = 100 * time.Millisecond
	}
	if t.Record.Enable && t.Record.Path == "" {
		return fmt.Errorf("telemetry.record.path is required when telemetry.record.enable is true")
	}
	if t.UDP.Enable && t.UDP.Dest == "" {
		return fmt.Errorf("telemetry.udp.dest is required when telemetry.udp.enable is true")
	}
	if t.NATS.URL == "" {
		t.NATS.URL = "nats://127.0.0.1:4222"
	}
	if t.NATS.Subject == "" {
		t.NATS.Subject = "avc.telemetry"
	}
	if t.Redis.Addr == "" {
		t.Redis.Addr = "127.0.0.1:6379"
	}
	if t.Redis.Key == "" {
		t.Redis.Key = "avc:state"
	}
	return nil
}

// AvcSettings converts the validated settings section into run settings.
func (c Config) AvcSettings() avc.Settings {
	s := c.Settings
	def := avc.ModeAvoidingLeft
	if s.DefaultAvoid == "right" {
		def = avc.ModeAvoidingRight
	}
	enable := true
	if s.EnableMotors != nil {
		enable = *s.EnableMotors
	}
	return avc.Settings{
		MaxSpeed:         s.MaxSpeed,
		TurnGain:         s.TurnGain,
		ObstacleDistance: s.ObstacleDistance,
		Tolerance:        s.Tolerance,
		SampleCount:      s.SampleCount,
		EnableMotors:     enable,
		TickInterval:     s.TickInterval,
		BrakeDwell:       s.BrakeDwell,
		AvoidPolicy:      avc.AwayFromTurn(def),
	}
}
