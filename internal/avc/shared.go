package avc

import (
	"log"
	"sync"
)

// Shared is the single-slot exchange between the control loop, telemetry
// consumers, and the operator. Writers replace the whole snapshot and
// readers always get an independent copy. Once the mode is Aborted no
// writer can change it.
type Shared struct {
	mu sync.Mutex
	st NavigationState
}

func NewShared() *Shared {
	return &Shared{st: NewNavigationState()}
}

// Read returns a copy of the latest snapshot.
func (s *Shared) Read() NavigationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

func (s *Shared) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Mode
}

// Publish replaces the snapshot with st. It reports false, without writing,
// when the run has been aborted.
func (s *Shared) Publish(st NavigationState) bool {
	st = st.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Mode.Kind == ModeAborted {
		return false
	}
	s.st = st
	return true
}

// Abort marks the run aborted. It reports false if the run had already
// finished or was aborted before.
func (s *Shared) Abort() bool {
	s.mu.Lock()
	prev := s.st.Mode
	if prev.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.st.Mode = Mode{Kind: ModeAborted}
	s.mu.Unlock()
	log.Printf("avc abort requested mode=%s", prev)
	return true
}

// RequestStart opens the start gate on behalf of the operator. It only has
// an effect while the vehicle is waiting to start.
func (s *Shared) RequestStart() bool {
	s.mu.Lock()
	if s.st.Mode.Kind != ModeWaitingToStart {
		s.mu.Unlock()
		return false
	}
	s.st.Mode = Mode{Kind: ModeNavigating}
	s.mu.Unlock()
	log.Printf("avc start requested by operator")
	return true
}

type gateSignal uint8

const (
	gateWaiting gateSignal = iota
	gateStarted
	gateAborted
)

// publishWaiting writes st unless the operator has already started or
// aborted the run.
func (s *Shared) publishWaiting(st NavigationState) gateSignal {
	st = st.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.st.Mode.Kind {
	case ModeAborted:
		return gateAborted
	case ModeNavigating:
		return gateStarted
	}
	s.st = st
	return gateWaiting
}

// finalize writes the last snapshot of a run. An earlier abort wins over
// st.Mode; the mode actually stored is returned.
func (s *Shared) finalize(st NavigationState) Mode {
	st = st.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Mode.Kind == ModeAborted {
		st.Mode = Mode{Kind: ModeAborted}
	}
	s.st = st
	return st.Mode
}
