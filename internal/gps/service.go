package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
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

// Config controls the GPS reader. Device may be empty to auto-detect a USB
// receiver.
type Config struct {
	Enable bool

	// Source is "nmea" (direct serial) or "gpsd". Empty means "nmea".
	Source string

	GPSDAddr string

	Device string
	Baud   int

	// StaleAfter is how long a fix stays usable without a new sentence.
	StaleAfter time.Duration
}

type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Valid    bool `json:"valid"`
	FixStale bool `json:"fix_stale"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	LatDeg     float64  `json:"lat_deg,omitempty"`
	LonDeg     float64  `json:"lon_deg,omitempty"`
	SpeedMPS   *float64 `json:"speed_mps,omitempty"`
	CourseDeg  *float64 `json:"course_deg,omitempty"`
	FixQuality *int     `json:"fix_quality,omitempty"`
	FixMode    *int     `json:"fix_mode,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`
	HDOP       *float64 `json:"hdop,omitempty"`
	HorizAccM  *float64 `json:"horiz_acc_m,omitempty"`
	FixAgeSec  float64  `json:"fix_age_sec,omitempty"`

	LastFix    time.Time `json:"-"`
	LastFixUTC string    `json:"last_fix_utc,omitempty"`
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
	src := strings.ToLower(strings.TrimSpace(cfg.Source))
	if src == "" {
		src = "nmea"
	}
	cfg.Source = src
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Second
	}
	s := &Service{cfg: cfg, now: time.Now}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: src, GPSDAddr: strings.TrimSpace(cfg.GPSDAddr), Device: cfg.Device, Baud: cfg.Baud})
	return s
}

// Start opens the receiver and begins reading. It is a no-op when disabled
// or already started.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("gps: ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if s.cfg.Source == "gpsd" {
		return s.startGPSDLocked(ctx)
	}
	return s.startNMEALocked(ctx)
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = serialport.Detect()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps: auto-detect failed")
		}
	}

	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	f, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return fmt.Errorf("gps: %w", err)
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.last.Store(Snapshot{Enabled: true, Source: "nmea", Device: device, Baud: baud})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = f.Close()
		}()
		log.Printf("gps enabled device=%s baud=%d", device, baud)
		st := nmeaState{device: device, baud: baud}
		s.readNMEA(childCtx, f, &st)
	}()
	return nil
}

// readNMEA consumes sentences from r until it fails or ctx is done.
func (s *Service) readNMEA(ctx context.Context, r io.Reader, st *nmeaState) {
	// NMEA sentences are < 82 chars; allow some headroom for chatter.
	s.scanLines(ctx, r, 4096, "gps", func(now time.Time, line string) (bool, error) {
		if !strings.HasPrefix(line, "$") {
			return false, nil
		}
		sent, err := nmea.Parse(line)
		if err != nil {
			return false, err
		}
		return st.apply(now, sent), nil
	}, st.snapshot)
}

// scanLines feeds trimmed, non-empty lines to apply and stores a fresh
// snapshot whenever apply reports a change. A parse error is recorded as
// LastError without touching the fix.
func (s *Service) scanLines(ctx context.Context, r io.Reader, maxLine int, who string,
	apply func(now time.Time, line string) (bool, error), snapshot func() Snapshot) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256), maxLine)
	for ctx.Err() == nil {
		if !sc.Scan() {
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			s.setError(fmt.Sprintf("%s read stopped: %v", who, err))
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		changed, err := apply(s.now().UTC(), line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		if changed {
			s.last.Store(snapshot())
		}
	}
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.last.Store(Snapshot{Enabled: true, Source: "gpsd", GPSDAddr: addr, Device: "gpsd"})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("gps enabled source=gpsd addr=%s", addr)
		s.followGPSD(childCtx, addr, newGPSDState(addr))
	}()
	return nil
}

// followGPSD keeps a gpsd session open, redialing with exponential backoff
// capped at 10s. State survives reconnects.
func (s *Service) followGPSD(ctx context.Context, addr string, st *gpsdState) {
	const minWait, maxWait = 250 * time.Millisecond, 10 * time.Second
	wait := minWait
	for ctx.Err() == nil {
		conn, err := dialGPSD(ctx, addr)
		if err != nil {
			s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			wait = min(2*wait, maxWait)
			continue
		}
		wait = minWait

		// Close interrupts a blocked read through the closer.
		s.mu.Lock()
		s.closer = conn
		s.mu.Unlock()

		s.readGPSD(ctx, conn, st)
		_ = conn.Close()
	}
}

func (s *Service) readGPSD(ctx context.Context, conn io.ReadWriter, st *gpsdState) {
	if err := gpsdWatch(conn); err != nil {
		s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
		return
	}
	s.scanLines(ctx, conn, 256*1024, "gpsd", st.applyLine, st.snapshot)
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

// Snapshot returns the latest receiver state with the fix age filled in.
func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	snap := v.(Snapshot)
	if !snap.LastFix.IsZero() {
		age := s.now().Sub(snap.LastFix)
		snap.FixAgeSec = age.Seconds()
		snap.FixStale = age > s.cfg.StaleAfter
	}
	return snap
}

// Position reports the latest fix, or ok=false when there is no valid fix
// or it has gone stale.
func (s *Service) Position() (nav.Location, bool) {
	snap := s.Snapshot()
	if !snap.Valid || snap.FixStale || snap.LastFix.IsZero() {
		return nav.Location{}, false
	}
	return nav.Location{Lat: snap.LatDeg, Lon: snap.LonDeg}, true
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	v, _ := s.last.Load().(Snapshot)
	v.LastError = msg
	// Transient parse errors must not flip validity.
	s.last.Store(v)
}
