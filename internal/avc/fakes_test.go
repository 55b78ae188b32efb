package avc

import (
	"context"
	"errors"
	"sync"
	"time"

	"avc-ng/internal/nav"
)

type fix struct {
	loc nav.Location
	ok  bool
}

// scriptedPosition returns fixes in order and repeats the last one.
type scriptedPosition struct {
	mu    sync.Mutex
	fixes []fix
	calls int
}

func (p *scriptedPosition) Position() (nav.Location, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if len(p.fixes) == 0 {
		return nav.Location{}, false
	}
	if i >= len(p.fixes) {
		i = len(p.fixes) - 1
	}
	return p.fixes[i].loc, p.fixes[i].ok
}

type fixedHeading struct {
	deg   float64
	ok    bool
	calls int
}

func (h *fixedHeading) Heading() (float64, bool) {
	h.calls++
	return h.deg, h.ok
}

type fixedRanges struct {
	r     Ranges
	calls int
}

func (f *fixedRanges) MinDistance(z Zone) int {
	f.calls++
	switch z {
	case ZoneFrontLeft:
		return f.r.Left
	case ZoneFrontRight:
		return f.r.Right
	default:
		return f.r.Front
	}
}

type recordingMotors struct {
	mu       sync.Mutex
	commands [][2]MotionCommand
}

func (m *recordingMotors) Apply(left, right MotionCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, [2]MotionCommand{left, right})
}

func (m *recordingMotors) all() [][2]MotionCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]MotionCommand(nil), m.commands...)
}

func (m *recordingMotors) brakes() int {
	n := 0
	for _, c := range m.all() {
		if c[0].Kind == MotionBrake && c[1].Kind == MotionBrake {
			n++
		}
	}
	return n
}

// scriptedSwitch returns states in order and repeats the last one.
type scriptedSwitch struct {
	mu     sync.Mutex
	states []bool
	calls  int
}

func (s *scriptedSwitch) State() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	return s.states[i], true
}

type failingStarter struct {
	fixedHeading
}

func (f *failingStarter) Start(context.Context) error { return errors.New("serial port busy") }

// watcher closes Done once the shared mode turns terminal.
type watcher struct {
	done chan struct{}
}

func newWatcher(s *Shared) *watcher {
	w := &watcher{done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for !s.Mode().Terminal() {
			time.Sleep(time.Millisecond)
		}
	}()
	return w
}

func (w *watcher) Done() <-chan struct{} { return w.done }

func testSettings() Settings {
	s := DefaultSettings()
	s.TurnGain = 3
	s.MaxSpeed = 127
	s.ObstacleDistance = 60
	return s
}

func noSleep(time.Duration) {}
