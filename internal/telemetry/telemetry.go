// Package telemetry polls the shared navigation state and fans each change
// out to recording and network sinks.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"avc-ng/internal/avc"
)

// Frame is one published observation.
type Frame struct {
	Seq     uint64              `json:"seq"`
	Time    time.Time           `json:"time"`
	State   avc.NavigationState `json:"state"`
	Overlay []string            `json:"overlay"`
}

// Sink receives frames in order from a single goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, f Frame) error
	Close() error
}

type SinkStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

type Config struct {
	// Interval is the polling period. Frames are only emitted when the
	// state changed.
	Interval time.Duration
}

// Consumer implements avc.Consumer: Done closes after the terminal frame
// has been handed to every sink, or when its context ends.
type Consumer struct {
	cfg    Config
	shared *avc.Shared
	sinks  []Sink
	now    func() time.Time

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	latest Frame
	have   bool
	stats  map[string]*SinkStats

	wg sync.WaitGroup
}

func New(shared *avc.Shared, cfg Config, sinks ...Sink) *Consumer {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	stats := make(map[string]*SinkStats, len(sinks))
	for _, s := range sinks {
		stats[s.Name()] = &SinkStats{}
	}
	return &Consumer{
		cfg:    cfg,
		shared: shared,
		sinks:  sinks,
		now:    time.Now,
		done:   make(chan struct{}),
		stats:  stats,
	}
}

func (c *Consumer) Done() <-chan struct{} { return c.done }

func (c *Consumer) Start(ctx context.Context) error {
	if c == nil || c.shared == nil {
		return fmt.Errorf("telemetry: consumer has no shared state")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	names := make([]string, 0, len(c.sinks))
	for _, s := range c.sinks {
		names = append(names, s.Name())
	}
	log.Printf("telemetry enabled interval=%s sinks=%v", c.cfg.Interval, names)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.done)
		c.loop(childCtx)
	}()
	return nil
}

func (c *Consumer) loop(ctx context.Context) {
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()

	var seq uint64
	var prev avc.NavigationState
	first := true
	for {
		st := c.shared.Read()
		if first || changed(prev, st) {
			first = false
			prev = st
			seq++
			c.emit(ctx, Frame{
				Seq:     seq,
				Time:    c.now(),
				State:   st,
				Overlay: FormatOverlay(st, c.now()),
			})
		}
		if st.Mode.Terminal() {
			log.Printf("telemetry done mode=%s frames=%d", st.Mode, seq)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func changed(a, b avc.NavigationState) bool {
	return !a.UpdatedAt.Equal(b.UpdatedAt) || a.Mode != b.Mode
}

func (c *Consumer) emit(ctx context.Context, f Frame) {
	c.mu.Lock()
	c.latest = f
	c.have = true
	c.mu.Unlock()

	for _, s := range c.sinks {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.Interval)
		err := s.Publish(pctx, f)
		cancel()

		c.mu.Lock()
		st := c.stats[s.Name()]
		if err != nil {
			st.Failed++
			if st.LastError != err.Error() {
				log.Printf("telemetry sink=%s error: %v", s.Name(), err)
			}
			st.LastError = err.Error()
		} else {
			st.Published++
		}
		c.mu.Unlock()
	}
}

// Latest returns the most recent frame, if any.
func (c *Consumer) Latest() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.have
}

func (c *Consumer) Stats() map[string]SinkStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]SinkStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = *v
	}
	return out
}

// Close stops polling and closes every sink.
func (c *Consumer) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			log.Printf("telemetry sink=%s close: %v", s.Name(), err)
		}
	}
}
