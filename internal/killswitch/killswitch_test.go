package killswitch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"avc-ng/internal/gpio"
)

type fakeInput struct {
	mu     sync.Mutex
	values []int
	i      int
	err    error
	closed bool
}

// Value replays values and then repeats the last one.
func (f *fakeInput) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[f.i]
	if f.i < len(f.values)-1 {
		f.i++
	}
	return v, nil
}

func (f *fakeInput) Close() error { f.closed = true; return nil }

func noSleep(t *testing.T) {
	prev := sleep
	t.Cleanup(func() { sleep = prev })
	sleep = func(time.Duration) {}
}

func TestUnknownUntilWindowAgrees(t *testing.T) {
	noSleep(t)
	s := New(Config{Samples: 4})
	if _, ok := s.State(); ok {
		t.Fatalf("expected unknown state")
	}

	// Bounce in the first window.
	in := &fakeInput{values: []int{1, 1, 0, 1, 1, 1, 1}}
	s.Sample(context.Background(), in)
	if _, ok := s.State(); ok {
		t.Fatalf("expected unknown after bounce")
	}

	s.Sample(context.Background(), in)
	run, ok := s.State()
	if !ok || !run {
		t.Fatalf("run=%v ok=%v want run", run, ok)
	}
}

func TestFlipToStop(t *testing.T) {
	noSleep(t)
	s := New(Config{Samples: 3})
	in := &fakeInput{values: []int{1, 1, 1, 0}}
	s.Sample(context.Background(), in)
	s.Sample(context.Background(), in)
	run, ok := s.State()
	if !ok || run {
		t.Fatalf("run=%v ok=%v want stop", run, ok)
	}
	if snap := s.Snapshot(); snap.Changes != 2 {
		t.Fatalf("changes=%d want 2", snap.Changes)
	}
}

func TestReadErrorKeepsState(t *testing.T) {
	noSleep(t)
	s := New(Config{Samples: 2})
	in := &fakeInput{values: []int{1}}
	s.Sample(context.Background(), in)
	in.err = errors.New("line released")
	s.Sample(context.Background(), in)
	run, ok := s.State()
	if !ok || !run {
		t.Fatalf("run=%v ok=%v want run", run, ok)
	}
	if !strings.Contains(s.Snapshot().LastError, "line released") {
		t.Fatalf("expected error recorded")
	}
}

func TestStartPollsAndClose(t *testing.T) {
	prevSleep, prevOpen := sleep, openInput
	t.Cleanup(func() { sleep, openInput = prevSleep, prevOpen })
	sleep = func(time.Duration) { time.Sleep(time.Millisecond) }

	in := &fakeInput{values: []int{1}}
	openInput = func(chip string, pin int, activeLow bool) (gpio.Input, error) {
		if chip != "gpiochip0" || pin != 17 || !activeLow {
			t.Errorf("open chip=%s pin=%d activeLow=%v", chip, pin, activeLow)
		}
		return in, nil
	}

	s := New(Config{Chip: "gpiochip0", Pin: 17, ActiveLow: true, Samples: 2})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if run, ok := s.State(); ok {
			if !run {
				t.Fatalf("want run")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never known")
		}
		time.Sleep(time.Millisecond)
	}
	s.Close()
	if !in.closed {
		t.Fatalf("expected input closed")
	}
}

func TestStartOpenError(t *testing.T) {
	prev := openInput
	t.Cleanup(func() { openInput = prev })
	openInput = func(string, int, bool) (gpio.Input, error) { return nil, errors.New("busy") }

	s := New(Config{Pin: 4})
	if err := s.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("err=%v", err)
	}
}
