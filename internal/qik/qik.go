package qik

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/gpio"
	"avc-ng/internal/serialport"
)

// Test seams.
var (
	openSerial = serialport.Open
	openOutput = gpio.OpenOutput
	sleep      = time.Sleep
)

type Config struct {
	Device string
	Baud   int
	Model  Model

	GPIOChip string
	// ResetPin is pulsed low before the autobaud byte. 0 disables.
	ResetPin int

	// DryRun logs commands without writing them.
	DryRun bool
}

type Snapshot struct {
	Model     string `json:"model"`
	DryRun    bool   `json:"dry_run"`
	Left      string `json:"left"`
	Right     string `json:"right"`
	Commands  uint64 `json:"commands"`
	LastError string `json:"last_error,omitempty"`
}

// Controller implements avc.Actuator.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	port     serialport.Port
	started  bool
	left     avc.MotionCommand
	right    avc.MotionCommand
	commands uint64
	lastErr  string
}

func New(cfg Config) *Controller {
	if cfg.Baud <= 0 {
		cfg.Baud = 57600
	}
	return &Controller{cfg: cfg}
}

// Start resets the controller, opens the port and sends the autobaud byte.
// In dry-run mode it only logs.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.cfg.DryRun {
		c.started = true
		log.Printf("qik dry-run model=%s", c.cfg.Model)
		return nil
	}

	if c.cfg.ResetPin > 0 {
		if err := c.reset(); err != nil {
			c.lastErr = err.Error()
			return err
		}
	}

	p, err := openSerial(c.cfg.Device, c.cfg.Baud)
	if err != nil {
		c.lastErr = err.Error()
		return fmt.Errorf("qik: %w", err)
	}
	if _, err := p.Write([]byte{autobaud}); err != nil {
		_ = p.Close()
		c.lastErr = err.Error()
		return fmt.Errorf("qik: autobaud: %w", err)
	}
	c.port = p
	c.started = true
	log.Printf("qik enabled device=%s baud=%d model=%s", c.cfg.Device, c.cfg.Baud, c.cfg.Model)
	return nil
}

// reset holds the reset line low for 1ms and then releases it. The line
// is pulled up on the board.
func (c *Controller) reset() error {
	out, err := openOutput(c.cfg.GPIOChip, c.cfg.ResetPin, 0)
	if err != nil {
		return fmt.Errorf("qik: reset pin %d: %w", c.cfg.ResetPin, err)
	}
	sleep(time.Millisecond)
	err = out.SetValue(1)
	_ = out.Close()
	if err != nil {
		return fmt.Errorf("qik: release reset: %w", err)
	}
	sleep(10 * time.Millisecond)
	return nil
}

// Apply sends one command per wheel. Write errors are recorded, not
// returned.
func (c *Controller) Apply(left, right avc.MotionCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := left != c.left || right != c.right
	c.left, c.right = left, right
	c.commands++

	if c.cfg.DryRun {
		if changed {
			log.Printf("qik dry-run left=%s right=%s", left, right)
		}
		return
	}
	if c.port == nil {
		c.lastErr = "qik: not started"
		return
	}
	buf := append(c.encode(0, left), c.encode(1, right)...)
	if _, err := c.port.Write(buf); err != nil {
		if c.lastErr != err.Error() {
			log.Printf("qik write failed: %v", err)
		}
		c.lastErr = err.Error()
	}
}

func (c *Controller) encode(motor int, cmd avc.MotionCommand) []byte {
	switch cmd.Kind {
	case avc.MotionBrake:
		if c.cfg.Model == Model2s9v1 {
			return CoastCommand(motor)
		}
		return BrakeCommand(motor, cmd.Value)
	case avc.MotionCoast:
		if c.cfg.Model == Model2s9v1 {
			return CoastCommand(motor)
		}
		return SpeedCommand(motor, 0)
	default:
		return SpeedCommand(motor, cmd.Value)
	}
}

func (c *Controller) query(req ...byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return 0, fmt.Errorf("qik: not started")
	}
	if _, err := c.port.Write(req); err != nil {
		return 0, fmt.Errorf("qik: write 0x%02X: %w", req[0], err)
	}
	var b [1]byte
	if _, err := io.ReadFull(c.port, b[:]); err != nil {
		return 0, fmt.Errorf("qik: read reply to 0x%02X: %w", req[0], err)
	}
	return b[0], nil
}

func (c *Controller) FirmwareVersion() (byte, error) { return c.query(cmdFirmwareVersion) }

// Errors reads and clears the error byte.
func (c *Controller) Errors() (byte, error) { return c.query(cmdErrorByte) }

func (c *Controller) ConfigParameter(param byte) (byte, error) {
	return c.query(cmdGetConfig, param)
}

// SetConfigParameter writes a parameter. A non-zero result code means the
// controller rejected it.
func (c *Controller) SetConfigParameter(param, value byte) error {
	res, err := c.query(SetConfigCommand(param, value)...)
	if err != nil {
		return err
	}
	if res != 0 {
		return fmt.Errorf("qik: set parameter %d=%d rejected code=%d", param, value, res)
	}
	return nil
}

// CurrentMilliamps reads the motor current on a 2s12v10.
func (c *Controller) CurrentMilliamps(motor int) (int, error) {
	if c.cfg.Model != Model2s12v10 {
		return 0, fmt.Errorf("qik: current sensing needs a 2s12v10")
	}
	cmd := byte(cmdM0Current)
	if motor == 1 {
		cmd = cmdM1Current
	}
	v, err := c.query(cmd)
	return int(v) * CurrentMilliampsPerCount, err
}

// MotorSpeed reads the speed the 2s12v10 is currently driving.
func (c *Controller) MotorSpeed(motor int) (int, error) {
	if c.cfg.Model != Model2s12v10 {
		return 0, fmt.Errorf("qik: speed readback needs a 2s12v10")
	}
	cmd := byte(cmdM0Speed)
	if motor == 1 {
		cmd = cmdM1Speed
	}
	v, err := c.query(cmd)
	return int(v), err
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Model:     c.cfg.Model.String(),
		DryRun:    c.cfg.DryRun,
		Left:      c.left.String(),
		Right:     c.right.String(),
		Commands:  c.commands,
		LastError: c.lastErr,
	}
}

// Close brakes both wheels and closes the port.
func (c *Controller) Close() {
	c.mu.Lock()
	p := c.port
	c.port = nil
	c.mu.Unlock()
	if p == nil {
		return
	}
	stop := append(c.encode(0, avc.Brake(avc.MaxBrake)), c.encode(1, avc.Brake(avc.MaxBrake))...)
	_, _ = p.Write(stop)
	_ = p.Close()
}
