package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/nav"
	"avc-ng/internal/replay"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed bool
}

func (s *recordingSink) Name() string { return "rec" }

func (s *recordingSink) Publish(_ context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return s.err
}

func (s *recordingSink) Close() error { s.closed = true; return nil }

func (s *recordingSink) modes() []avc.ModeKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]avc.ModeKind, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.State.Mode.Kind)
	}
	return out
}

func waitDone(t *testing.T, c *Consumer) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not finish")
	}
}

func TestFormatOverlay(t *testing.T) {
	st := avc.NewNavigationState()
	now := time.Date(2024, 6, 1, 12, 30, 5, 0, time.UTC)
	got := strings.Join(FormatOverlay(st, now), "|")
	want := "UTC: 2024-06-01 12:30:05|GPS: N/A|Compass: N/A|Waypoint: N/A|Turn: N/A|Motors: Speed(0) / Speed(0)|FL=255, FF=255, FR=255|waiting_to_start"
	if got != want {
		t.Fatalf("overlay=%q\nwant    %q", got, want)
	}

	pos := nav.Location{Lat: 40.0150001, Lon: -105.27}
	heading, bearing, turn := 12.34, 350.0, -22.34
	st.Position = &pos
	st.Heading = &heading
	st.Target = &avc.Target{Index: 2}
	st.Bearing = &bearing
	st.Turn = &turn
	st.Mode = avc.Mode{Kind: avc.ModeNavigating, Waypoint: 2}
	st.Motion = [2]avc.MotionCommand{avc.Speed(88), avc.Speed(127)}
	st.Ranges = avc.Ranges{Left: 200, Front: 90, Right: 255}
	got = strings.Join(FormatOverlay(st, now), "|")
	want = "UTC: 2024-06-01 12:30:05|GPS: 40.015000, -105.270000|Compass: 12.3|Waypoint: 2 @ 350.0|Turn: -22.3|Motors: Speed(88) / Speed(127)|FL=200, FF=90, FR=255|navigating(2)"
	if got != want {
		t.Fatalf("overlay=%q\nwant    %q", got, want)
	}
}

func TestConsumerEmitsChangesAndFinishes(t *testing.T) {
	shared := avc.NewShared()
	sink := &recordingSink{}
	c := New(shared, Config{Interval: time.Millisecond}, sink)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.modes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no initial frame")
		}
		time.Sleep(time.Millisecond)
	}
	// Unchanged state is not re-emitted.
	time.Sleep(10 * time.Millisecond)
	if n := len(sink.modes()); n != 1 {
		t.Fatalf("frames=%d want 1 while idle", n)
	}

	st := avc.NewNavigationState()
	st.Mode = avc.Mode{Kind: avc.ModeNavigating}
	st.UpdatedAt = time.Now()
	shared.Publish(st)
	shared.Abort()
	waitDone(t, c)

	modes := sink.modes()
	if modes[0] != avc.ModeWaitingToStart || modes[len(modes)-1] != avc.ModeAborted {
		t.Fatalf("modes=%v", modes)
	}
	f, ok := c.Latest()
	if !ok || f.State.Mode.Kind != avc.ModeAborted || f.Seq != uint64(len(modes)) {
		t.Fatalf("latest=%+v ok=%v", f, ok)
	}
	c.Close()
	if !sink.closed {
		t.Fatalf("sink not closed")
	}
}

func TestConsumerRecordsSinkErrors(t *testing.T) {
	shared := avc.NewShared()
	shared.Abort()
	sink := &recordingSink{err: errors.New("broker down")}
	c := New(shared, Config{Interval: time.Millisecond}, sink)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, c)
	st := c.Stats()["rec"]
	if st.Failed != 1 || st.Published != 0 || st.LastError != "broker down" {
		t.Fatalf("stats=%+v", st)
	}
}

func TestConsumerDoneOnCancel(t *testing.T) {
	c := New(avc.NewShared(), Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitDone(t, c)
}

func TestRecorderWritesReplayLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	now := time.Now()
	frame := func(kind avc.ModeKind, dt time.Duration) Frame {
		st := avc.NewNavigationState()
		st.Mode = avc.Mode{Kind: kind}
		return Frame{Time: now.Add(dt), State: st, Overlay: FormatOverlay(st, now)}
	}
	for i, f := range []Frame{
		frame(avc.ModeNavigating, 0),
		frame(avc.ModeNavigating, 10*time.Millisecond),
		frame(avc.ModeFinished, 20*time.Millisecond),
	} {
		if err := rec.Publish(context.Background(), f); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs, err := replay.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != 4 || recs[0].State != nil || recs[3].State.Mode.Kind != avc.ModeFinished {
		t.Fatalf("records=%+v", recs)
	}
}
