// Package killswitch debounces the physical run/stop switch.
package killswitch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"avc-ng/internal/gpio"
)

// Test seams.
var (
	openInput = gpio.OpenInput
	sleep     = time.Sleep
)

type Config struct {
	Chip string
	Pin  int
	// ActiveLow means the switch pulls the line low when set to run.
	ActiveLow bool

	// Samples consecutive reads SampleGap apart must agree before the
	// state changes. Settle is the pause between debounce windows.
	Samples   int
	SampleGap time.Duration
	Settle    time.Duration
}

type Snapshot struct {
	Known     bool      `json:"known"`
	Run       bool      `json:"run"`
	Changes   uint64    `json:"changes"`
	LastFlip  time.Time `json:"last_flip,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Switch reports the debounced state. Until a full window agrees the
// state is unknown.
type Switch struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	input  gpio.Input
	snap   Snapshot

	wg sync.WaitGroup
}

func New(cfg Config) *Switch {
	if cfg.Samples <= 0 {
		cfg.Samples = 10
	}
	if cfg.SampleGap <= 0 {
		cfg.SampleGap = 10 * time.Millisecond
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 250 * time.Millisecond
	}
	return &Switch{cfg: cfg, now: time.Now}
}

func (s *Switch) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	in, err := openInput(s.cfg.Chip, s.cfg.Pin, s.cfg.ActiveLow)
	if err != nil {
		s.snap.LastError = err.Error()
		return fmt.Errorf("killswitch: pin %d: %w", s.cfg.Pin, err)
	}
	s.input = in

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("killswitch enabled chip=%s pin=%d active_low=%v", s.cfg.Chip, s.cfg.Pin, s.cfg.ActiveLow)
		for childCtx.Err() == nil {
			s.Sample(childCtx, in)
			sleep(s.cfg.Settle)
		}
	}()
	return nil
}

// Sample runs one debounce window and updates the state when every read
// in it agrees.
func (s *Switch) Sample(ctx context.Context, in gpio.Input) {
	baseline, err := in.Value()
	if err != nil {
		s.setError(err)
		return
	}
	for i := 1; i < s.cfg.Samples; i++ {
		if ctx.Err() != nil {
			return
		}
		sleep(s.cfg.SampleGap)
		v, err := in.Value()
		if err != nil {
			s.setError(err)
			return
		}
		if v != baseline {
			return
		}
	}

	run := baseline == 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Known && s.snap.Run == run {
		return
	}
	s.snap.Known = true
	s.snap.Run = run
	s.snap.Changes++
	s.snap.LastFlip = s.now()
	log.Printf("killswitch state=%s", runLabel(run))
}

func runLabel(run bool) string {
	if run {
		return "run"
	}
	return "stop"
}

// State implements avc.KillSwitch.
func (s *Switch) State() (run bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Run, s.snap.Known
}

func (s *Switch) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Switch) Close() {
	s.mu.Lock()
	cancel := s.cancel
	in := s.input
	s.cancel = nil
	s.input = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if in != nil {
		_ = in.Close()
	}
}

func (s *Switch) setError(err error) {
	s.mu.Lock()
	s.snap.LastError = err.Error()
	s.mu.Unlock()
}
