package compass

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"avc-ng/internal/i2c"
	"avc-ng/internal/nav"
	"avc-ng/internal/sensors/icm20948"
)

type imuDevice interface {
	Read() (icm20948.Sample, error)
	ReadMag() (icm20948.MagSample, error)
}

// Test seam.
var openIMU = func(busPath string, addr uint16) (imuDevice, io.Closer, error) {
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, nil, err
	}
	dev, err := icm20948.New(bus.Dev(addr), bus.Dev(icm20948.MagAddress()))
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return dev, bus, nil
}

type IMUConfig struct {
	Enable  bool
	I2CBus  string
	Address uint16
	Poll    time.Duration

	StaleAfter  time.Duration
	Declination float64
	// HardIron is subtracted from every magnetometer sample (microtesla).
	HardIron [3]float64
}

// IMUService polls an ICM-20948 and reports its tilt-compensated heading.
type IMUService struct {
	cfg IMUConfig
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func NewIMU(cfg IMUConfig) *IMUService {
	if cfg.I2CBus == "" {
		cfg.I2CBus = "/dev/i2c-1"
	}
	if cfg.Address == 0 {
		cfg.Address = icm20948.DefaultAddress()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 20 * time.Millisecond
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Second
	}
	s := &IMUService{cfg: cfg, now: time.Now}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Device: cfg.I2CBus})
	return s
}

func (s *IMUService) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("compass: imu service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	dev, closer, err := openIMU(s.cfg.I2CBus, s.cfg.Address)
	if err != nil {
		s.setErrorLocked(err.Error())
		return fmt.Errorf("compass: imu on %s: %w", s.cfg.I2CBus, err)
	}
	s.closer = closer

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("compass enabled source=icm20948 bus=%s addr=0x%02X", s.cfg.I2CBus, s.cfg.Address)
		t := time.NewTicker(s.cfg.Poll)
		defer t.Stop()
		for {
			select {
			case <-childCtx.Done():
				return
			case <-t.C:
				s.poll(dev)
			}
		}
	}()
	return nil
}

func (s *IMUService) poll(dev imuDevice) {
	a, err := dev.Read()
	if err != nil {
		s.setError(err.Error())
		return
	}
	m, err := dev.ReadMag()
	if err != nil {
		s.setError(err.Error())
		return
	}
	m.Mx -= s.cfg.HardIron[0]
	m.My -= s.cfg.HardIron[1]
	m.Mz -= s.cfg.HardIron[2]

	s.last.Store(Snapshot{
		Enabled:    true,
		Valid:      true,
		Device:     s.cfg.I2CBus,
		HeadingDeg: nav.Normalize360(icm20948.Heading(a, m) + s.cfg.Declination),
		Reference:  "magnetic",
		LastUpdate: s.now(),
	})
}

func (s *IMUService) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if closer != nil {
		_ = closer.Close()
	}
}

func (s *IMUService) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap, _ := s.last.Load().(Snapshot)
	if !snap.LastUpdate.IsZero() {
		age := s.now().Sub(snap.LastUpdate)
		snap.AgeSec = age.Seconds()
		snap.Stale = age > s.cfg.StaleAfter
	}
	return snap
}

func (s *IMUService) Heading() (float64, bool) {
	snap := s.Snapshot()
	if !snap.Valid || snap.Stale {
		return 0, false
	}
	return snap.HeadingDeg, true
}

func (s *IMUService) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *IMUService) setErrorLocked(msg string) {
	v, _ := s.last.Load().(Snapshot)
	v.LastError = msg
	s.last.Store(v)
}
