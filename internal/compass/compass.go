// Package compass reads a serial heading sensor. It understands NMEA HDT
// (true), HDG and HDM (magnetic) sentences and bare decimal-degree lines as
// printed by simple microcontroller compass boards.
package compass

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"avc-ng/internal/nav"
	"avc-ng/internal/nmea"
	"avc-ng/internal/serialport"
)

// Test seam.
var openSerial = serialport.Open

type Config struct {
	Enable bool
	Device string
	Baud   int

	StaleAfter time.Duration
	// Declination is added to magnetic readings that carry no variation.
	Declination float64
}

type Snapshot struct {
	Enabled bool   `json:"enabled"`
	Valid   bool   `json:"valid"`
	Stale   bool   `json:"stale"`
	Device  string `json:"device,omitempty"`

	HeadingDeg float64 `json:"heading_deg"`
	// Reference is "true" or "magnetic" for the last raw reading.
	Reference string  `json:"reference,omitempty"`
	AgeSec    float64 `json:"age_sec,omitempty"`

	LastUpdate time.Time `json:"-"`
	LastError  string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config) *Service {
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Second
	}
	s := &Service{cfg: cfg, now: time.Now}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Device: cfg.Device})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("compass: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	p, err := openSerial(s.cfg.Device, s.cfg.Baud)
	if err != nil {
		s.setErrorLocked(err.Error())
		return fmt.Errorf("compass: %w", err)
	}
	s.closer = p

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = p.Close() }()
		log.Printf("compass enabled device=%s baud=%d", s.cfg.Device, s.cfg.Baud)
		s.read(childCtx, p)
	}()
	return nil
}

func (s *Service) read(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 128), 1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !sc.Scan() {
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			s.setError(fmt.Sprintf("compass read stopped: %v", err))
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rd, err := ParseLine(line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		hdg := rd.Degrees
		if rd.Magnetic && !rd.HasVariation {
			hdg += s.cfg.Declination
		}
		ref := "true"
		if rd.Magnetic {
			ref = "magnetic"
		}
		s.last.Store(Snapshot{
			Enabled:    true,
			Valid:      true,
			Device:     s.cfg.Device,
			HeadingDeg: nav.Normalize360(hdg),
			Reference:  ref,
			LastUpdate: s.now(),
		})
	}
}

func (s *Service) Close() {
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
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
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

// Heading reports the latest heading in [0,360), or ok=false when there is
// no reading or it has gone stale.
func (s *Service) Heading() (float64, bool) {
	snap := s.Snapshot()
	if !snap.Valid || snap.Stale {
		return 0, false
	}
	return snap.HeadingDeg, true
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	v, _ := s.last.Load().(Snapshot)
	v.LastError = msg
	s.last.Store(v)
}

// Reading is one parsed heading line.
type Reading struct {
	Degrees  float64
	Magnetic bool
	// HasVariation is set when Degrees already includes the sentence's
	// deviation and variation, making it a true heading.
	HasVariation bool
}

// ParseLine accepts $--HDT, $--HDG, $--HDM or a bare number of degrees.
func ParseLine(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("compass: unrecognized line %q", line)
		}
		return Reading{Degrees: v, Magnetic: true}, nil
	}

	sent, err := nmea.Parse(line)
	if err != nil {
		return Reading{}, err
	}
	hdg, ok := sent.Float(1)
	if !ok {
		return Reading{}, fmt.Errorf("compass: %s without heading", sent.Type)
	}
	switch sent.Type {
	case "HDT":
		return Reading{Degrees: hdg}, nil
	case "HDM":
		return Reading{Degrees: hdg, Magnetic: true}, nil
	case "HDG":
		r := Reading{Degrees: hdg, Magnetic: true}
		if dev, ok := signed(sent, 2, 3); ok {
			r.Degrees += dev
		}
		if v, ok := signed(sent, 4, 5); ok {
			r.Degrees += v
			r.Magnetic = false
			r.HasVariation = true
		}
		return r, nil
	default:
		return Reading{}, fmt.Errorf("compass: unsupported sentence %s", sent.Type)
	}
}

// signed reads an angle field with an E/W direction field; west is negative.
func signed(s nmea.Sentence, val, dir int) (float64, bool) {
	v, ok := s.Float(val)
	if !ok {
		return 0, false
	}
	switch strings.ToUpper(s.Field(dir)) {
	case "E":
		return v, true
	case "W":
		return -v, true
	default:
		return 0, false
	}
}
