// Package replay records navigation state to a line-oriented log and plays
// it back with the original timing.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"avc-ng/internal/avc"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' are comments (the recorder writes overlay text there).
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<json>
//   where t_ns is nanoseconds since START and json is one avc.NavigationState.

type Record struct {
	At time.Duration
	// State is nil for a START marker.
	State *avc.NavigationState
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadAll parses the whole log. Errors name the offending line number.
func (rr *Reader) ReadAll() ([]Record, error) {
	sc := bufio.NewScanner(rr.r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for n := 1; sc.Scan(); n++ {
		rec, ok, err := parseLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", n, err)
		}
		if ok {
			recs = append(recs, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return recs, nil
}

// parseLine reports ok=false for blank and comment lines.
func parseLine(raw string) (Record, bool, error) {
	line := strings.TrimSpace(raw)
	switch {
	case line == "", strings.HasPrefix(line, "#"):
		return Record{}, false, nil
	case line == "START":
		return Record{}, true, nil
	}

	ts, body, found := strings.Cut(line, ",")
	if !found {
		return Record{}, false, fmt.Errorf("want <t_ns>,<json>, got %q", line)
	}
	ns, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil || ns < 0 {
		return Record{}, false, fmt.Errorf("bad timestamp %q", ts)
	}
	var st avc.NavigationState
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &st); err != nil {
		return Record{}, false, fmt.Errorf("bad state: %w", err)
	}
	return Record{At: time.Duration(ns), State: &st}, true, nil
}

// ReadFile reads every record in path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

var errWriterClosed = errors.New("replay: writer closed")

// Writer appends records relative to the time it was created.
type Writer struct {
	f     *os.File
	bw    *bufio.Writer
	start time.Time
	done  bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, bw: bufio.NewWriterSize(f, 64*1024), start: time.Now()}
	if _, err := w.bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) WriteState(now time.Time, st avc.NavigationState) error {
	if w.done {
		return errWriterClosed
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.bw, "%d,%s\n", max(now.Sub(w.start), 0).Nanoseconds(), b)
	return err
}

// WriteComment writes text as '#' lines, one per line of text.
func (w *Writer) WriteComment(text string) error {
	if w.done {
		return errWriterClosed
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if _, err := fmt.Fprintf(w.bw, "# %s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Flush() error {
	if w.done {
		return nil
	}
	return w.bw.Flush()
}

func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	ferr := w.bw.Flush()
	cerr := w.f.Close()
	return errors.Join(ferr, cerr)
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type wallSleeper struct{}

func (wallSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play feeds each state to cb, sleeping the recorded gap between states
// divided by speed. A START marker restarts the clock, so no sleep spans
// two runs in one file.
func Play(records []Record, speed float64, loop bool, sleeper Sleeper, cb func(st avc.NavigationState) error) error {
	switch {
	case speed <= 0:
		return fmt.Errorf("replay: speed must be > 0, got %g", speed)
	case cb == nil:
		return errors.New("replay: nil callback")
	case len(records) == 0:
		return errors.New("replay: no records")
	}
	if sleeper == nil {
		sleeper = wallSleeper{}
	}

	for {
		var prev *time.Duration
		for _, r := range records {
			if r.State == nil {
				prev = nil
				continue
			}
			if prev != nil {
				if gap := time.Duration(float64(r.At-*prev) / speed); gap > 0 {
					sleeper.Sleep(gap)
				}
			}
			at := r.At
			prev = &at
			if err := cb(*r.State); err != nil {
				return err
			}
		}
		if !loop {
			return nil
		}
	}
}
