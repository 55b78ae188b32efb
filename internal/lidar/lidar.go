package lidar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/serialport"
)

// Test seam.
var openSerial = serialport.Open

type Config struct {
	Device string
	Baud   int
	// FrontHalfWidth is the half-angle of the front zone; the side zones
	// extend SideWidth degrees beyond it.
	FrontHalfWidth float64
	SideWidth      float64
	// StaleAfter discards a revolution that has not been refreshed.
	StaleAfter time.Duration
}

type Snapshot struct {
	Device      string    `json:"device"`
	Revolutions uint64    `json:"revolutions"`
	Points      int       `json:"points"`
	LastSweep   time.Time `json:"last_sweep"`
	BadPackets  uint64    `json:"bad_packets"`
	LastError   string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	port      serialport.Port
	current   Sweep
	points    int
	complete  Sweep
	revs      uint64
	lastSweep time.Time
	bad       uint64
	lastErr   string

	wg sync.WaitGroup
}

func New(cfg Config) *Service {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.FrontHalfWidth <= 0 {
		cfg.FrontHalfWidth = 15
	}
	if cfg.SideWidth <= 0 {
		cfg.SideWidth = 30
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Second
	}
	return &Service{cfg: cfg, now: time.Now}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	port, err := openSerial(s.cfg.Device, s.cfg.Baud)
	if err != nil {
		s.lastErr = err.Error()
		return fmt.Errorf("lidar: %w", err)
	}
	if err := startStream(port); err != nil {
		_ = port.Close()
		s.lastErr = err.Error()
		return err
	}
	s.port = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("lidar enabled device=%s baud=%d", s.cfg.Device, s.cfg.Baud)
		err := s.read(childCtx, port)
		if err != nil && childCtx.Err() == nil {
			s.setError(err.Error())
			log.Printf("lidar stopped: %v", err)
		}
	}()
	return nil
}

func (s *Service) read(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	buf := make([]byte, packetLen)
	if _, err := io.ReadFull(br, buf); err != nil {
		return err
	}
	for ctx.Err() == nil {
		p, err := DecodePacket(buf)
		switch {
		case errors.Is(err, ErrChecksum):
			// Slide one byte to regain packet alignment.
			s.mu.Lock()
			s.bad++
			s.mu.Unlock()
			copy(buf, buf[1:])
			if _, err := io.ReadFull(br, buf[packetLen-1:]); err != nil {
				return err
			}
			continue
		case err != nil:
			s.setError(err.Error())
		default:
			s.Add(p)
		}
		if _, err := io.ReadFull(br, buf); err != nil {
			return err
		}
	}
	return nil
}

// Add folds a sample into the revolution in progress. A sync sample
// publishes the previous revolution.
func (s *Service) Add(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Sync && s.points > 0 {
		s.complete = s.current
		s.current = Sweep{}
		s.points = 0
		s.revs++
		s.lastSweep = s.now()
	}
	s.current.add(p)
	s.points++
}

// MinDistance returns the closest return in zone, in centimeters clamped
// to avc.RangeMax. An empty or stale zone reads as clear.
func (s *Service) MinDistance(zone avc.Zone) int {
	fw, sw := s.cfg.FrontHalfWidth, s.cfg.SideWidth
	var from, to float64
	switch zone {
	case avc.ZoneFront:
		from, to = -fw, fw
	case avc.ZoneFrontLeft:
		from, to = -(fw + sw), -fw
	case avc.ZoneFrontRight:
		from, to = fw, fw+sw
	default:
		return avc.RangeMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revs == 0 || s.now().Sub(s.lastSweep) > s.cfg.StaleAfter {
		return avc.RangeMax
	}
	d, ok := s.complete.Min(from, to)
	if !ok || d > avc.RangeMax {
		return avc.RangeMax
	}
	return d
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.complete {
		if d > 0 {
			n++
		}
	}
	return Snapshot{
		Device:      s.cfg.Device,
		Revolutions: s.revs,
		Points:      n,
		LastSweep:   s.lastSweep,
		BadPackets:  s.bad,
		LastError:   s.lastErr,
	}
}

func (s *Service) Close() {
	s.mu.Lock()
	cancel := s.cancel
	port := s.port
	s.cancel = nil
	s.port = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if port != nil {
		_, _ = port.Write(cmdStopStream)
		_ = port.Close()
	}
	s.wg.Wait()
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}
