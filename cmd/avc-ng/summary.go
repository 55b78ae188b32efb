package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/replay"
)

type runSummary struct {
	Segments    int
	States      int
	MaxDuration time.Duration
	// ModeCounts counts transitions into each mode kind.
	ModeCounts map[string]int
	Reached    int
	Final      avc.Mode
	HaveFinal  bool
}

func summarizeRun(records []replay.Record) runSummary {
	s := runSummary{ModeCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	segments := 0
	var prev avc.Mode
	havePrev := false

	for _, r := range records {
		if r.State == nil {
			segments++
			origin = r.At
			havePrev = false
			continue
		}
		s.States++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		m := r.State.Mode
		if !havePrev || m != prev {
			s.ModeCounts[m.Kind.String()]++
			if m.Kind == avc.ModeReachedWaypoint {
				s.Reached++
			}
		}
		prev, havePrev = m, true
		s.Final, s.HaveFinal = m, true
	}
	if segments == 0 && s.States > 0 {
		segments = 1
	}
	s.Segments = segments
	return s
}

func printRunSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}
	s := summarizeRun(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "states: %d\n", s.States)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "waypoints_reached: %d\n", s.Reached)
	if s.HaveFinal {
		fmt.Fprintf(w, "final_mode: %s\n", s.Final)
	}

	keys := make([]string, 0, len(s.ModeCounts))
	for k := range s.ModeCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "mode_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.ModeCounts[k])
	}
	return nil
}
