// Package octasonic drives the Octasonic 8-channel ultrasonic breakout over
// SPI and exposes the closest reading per avoidance zone.
package octasonic

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/spi"
)

const (
	cmdSetSensorCount = 0x10
	cmdGetSensorCount = 0x20
	cmdGetReading     = 0x30
	cmdNoop           = 0x00

	MaxSensors = 8
)

// Transferer exchanges a single byte on a full-duplex bus.
type Transferer interface {
	TransferByte(b byte) (byte, error)
}

// Board speaks the Octasonic command set. The reply to a command is
// clocked out on the following transfer.
type Board struct {
	bus Transferer
}

func NewBoard(bus Transferer) *Board { return &Board{bus: bus} }

func (b *Board) SetSensorCount(n int) error {
	if n < 1 || n > MaxSensors {
		return fmt.Errorf("octasonic: sensor count %d out of range 1..%d", n, MaxSensors)
	}
	_, err := b.bus.TransferByte(cmdSetSensorCount | byte(n))
	return err
}

func (b *Board) SensorCount() (int, error) {
	v, err := b.query(cmdGetSensorCount)
	return int(v), err
}

// Reading returns the last distance in centimeters measured by sensor n.
func (b *Board) Reading(n int) (int, error) {
	if n < 0 || n >= MaxSensors {
		return 0, fmt.Errorf("octasonic: sensor %d out of range", n)
	}
	v, err := b.query(cmdGetReading | byte(n))
	return int(v), err
}

func (b *Board) query(cmd byte) (byte, error) {
	if _, err := b.bus.TransferByte(cmd); err != nil {
		return 0, err
	}
	return b.bus.TransferByte(cmdNoop)
}

type spiBus interface {
	Transferer
	io.Closer
}

// Test seam.
var openSPI = func(path string, speedHz uint32) (spiBus, error) {
	d, err := spi.Open(path, spi.Config{Mode: 0, BitsPerWord: 8, SpeedHz: speedHz})
	if err != nil {
		return nil, err
	}
	return d, nil
}

type Config struct {
	Device      string
	SpeedHz     uint32
	SensorCount int
	// Zones maps front-left, front and front-right to sensor indexes.
	Zones        [3]int
	Samples      int
	PollInterval time.Duration
}

type Snapshot struct {
	Device   string    `json:"device"`
	Readings []int     `json:"readings_cm"`
	Polls    uint64    `json:"polls"`
	LastPoll time.Time `json:"last_poll"`

	LastError string `json:"last_error,omitempty"`
}

// Service polls every sensor on the board and keeps a short history per
// sensor so MinDistance can report a smoothed value.
type Service struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	closer   io.Closer
	history  [][]int
	next     int
	filled   int
	polls    uint64
	lastPoll time.Time
	lastErr  string

	wg sync.WaitGroup
}

func New(cfg Config) *Service {
	if cfg.Device == "" {
		cfg.Device = "/dev/spidev0.0"
	}
	if cfg.SpeedHz == 0 {
		cfg.SpeedHz = 20000
	}
	if cfg.SensorCount <= 0 {
		cfg.SensorCount = 3
	}
	if cfg.Samples <= 0 {
		cfg.Samples = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	history := make([][]int, cfg.SensorCount)
	for i := range history {
		history[i] = make([]int, cfg.Samples)
	}
	return &Service{cfg: cfg, now: time.Now, history: history}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	dev, err := openSPI(s.cfg.Device, s.cfg.SpeedHz)
	if err != nil {
		s.lastErr = err.Error()
		return fmt.Errorf("octasonic: open %s: %w", s.cfg.Device, err)
	}
	board := NewBoard(dev)
	if err := s.configure(board); err != nil {
		_ = dev.Close()
		s.lastErr = err.Error()
		return err
	}
	s.closer = dev

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("octasonic enabled device=%s sensors=%d zones=%v", s.cfg.Device, s.cfg.SensorCount, s.cfg.Zones)
		t := time.NewTicker(s.cfg.PollInterval)
		defer t.Stop()
		for {
			select {
			case <-childCtx.Done():
				return
			case <-t.C:
				s.Poll(board)
			}
		}
	}()
	return nil
}

func (s *Service) configure(b *Board) error {
	if err := b.SetSensorCount(s.cfg.SensorCount); err != nil {
		return fmt.Errorf("octasonic: set sensor count: %w", err)
	}
	got, err := b.SensorCount()
	if err != nil {
		return fmt.Errorf("octasonic: read sensor count: %w", err)
	}
	if got != s.cfg.SensorCount {
		return fmt.Errorf("octasonic: board reports %d sensors, configured %d", got, s.cfg.SensorCount)
	}
	return nil
}

// Poll reads every configured sensor once. A failed read keeps the
// previous history for that cycle.
func (s *Service) Poll(b *Board) {
	readings := make([]int, s.cfg.SensorCount)
	for i := range readings {
		v, err := b.Reading(i)
		if err != nil {
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()
			return
		}
		readings[i] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range readings {
		s.history[i][s.next] = v
	}
	s.next = (s.next + 1) % s.cfg.Samples
	if s.filled < s.cfg.Samples {
		s.filled++
	}
	s.polls++
	s.lastPoll = s.now()
}

// MinDistance reports the averaged distance for the sensor mapped to zone.
// Before the first poll the zone reads as clear.
func (s *Service) MinDistance(zone avc.Zone) int {
	var idx int
	switch zone {
	case avc.ZoneFrontLeft:
		idx = s.cfg.Zones[0]
	case avc.ZoneFront:
		idx = s.cfg.Zones[1]
	case avc.ZoneFrontRight:
		idx = s.cfg.Zones[2]
	default:
		return avc.RangeMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.history) || s.filled == 0 {
		return avc.RangeMax
	}
	sum := 0
	for i := 0; i < s.filled; i++ {
		sum += s.history[idx][i]
	}
	return sum / s.filled
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Device:    s.cfg.Device,
		Polls:     s.polls,
		LastPoll:  s.lastPoll,
		LastError: s.lastErr,
	}
	if s.filled > 0 {
		last := (s.next - 1 + s.cfg.Samples) % s.cfg.Samples
		snap.Readings = make([]int, len(s.history))
		for i := range s.history {
			snap.Readings[i] = s.history[i][last]
		}
	}
	return snap
}

func (s *Service) Close() {
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
