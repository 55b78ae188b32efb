package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/config"
	"avc-ng/internal/nav"
	"avc-ng/internal/replay"
)

func writeConfig(t *testing.T, contents string) (string, config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "avc.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return path, cfg
}

const simConfig = `
course:
  waypoints:
    - {lat: 40.0, lon: -105.0}
gps: {source: sim}
compass: {source: sim}
ranging: {source: sim}
motors: {driver: sim}
killswitch: {source: sim}
sim:
  max_speed_mps: 40
`

func TestRunCourseInSim(t *testing.T) {
	rec := filepath.Join(t.TempDir(), "run.log")
	path, cfg := writeConfig(t, simConfig+"telemetry:\n  interval: 5ms\n  record: {enable: true, path: "+rec+"}\n")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := runCourse(ctx, cfg, path, nil); err != nil {
		t.Fatalf("runCourse() error: %v", err)
	}

	recs, err := replay.ReadFile(rec)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	s := summarizeRun(recs)
	if !s.HaveFinal || s.Final.Kind != avc.ModeFinished {
		t.Fatalf("final=%v want finished", s.Final)
	}
	if s.Segments != 1 {
		t.Fatalf("segments=%d want 1", s.Segments)
	}
}

func TestRunCourseAbortedByContext(t *testing.T) {
	// No kill switch: the vehicle waits for an operator start that never comes.
	cfgText := strings.Replace(simConfig, "killswitch: {source: sim}\n", "", 1)
	path, cfg := writeConfig(t, cfgText)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := runCourse(ctx, cfg, path, nil)
	if err == nil || !strings.Contains(err.Error(), "aborted") {
		t.Fatalf("err=%v want course not finished: aborted", err)
	}
}

func TestNewRig_RequiresEnabledGPS(t *testing.T) {
	_, cfg := writeConfig(t, "course:\n  waypoints:\n    - {lat: 40.0, lon: -105.0}\ngps: {source: gpsd}\n")
	_, err := newRig(cfg)
	if err == nil || err.Error() != "gps.enable must be true to run a course" {
		t.Fatalf("err=%v", err)
	}
}

func TestSimStartSouthOfFirstWaypoint(t *testing.T) {
	_, cfg := writeConfig(t, simConfig)
	start, heading := simStart(cfg)
	wp := cfg.Course.Waypoints[0].Location()
	if d := start.DistanceMeters(wp); d < 19.5 || d > 20.5 {
		t.Fatalf("distance=%.2f want 20", d)
	}
	if start.Lat >= wp.Lat || heading != 0 {
		t.Fatalf("start=%s heading=%v", start, heading)
	}

	cfg.Sim.StartLatDeg, cfg.Sim.StartLonDeg, cfg.Sim.StartHeadingDeg = 41, -106, 90
	start, heading = simStart(cfg)
	if start != (nav.Location{Lat: 41, Lon: -106}) || heading != 90 {
		t.Fatalf("start=%s heading=%v", start, heading)
	}
}

func TestLogActuatorSkipsRepeats(t *testing.T) {
	a := &logActuator{}
	a.Apply(avc.Speed(10), avc.Speed(10))
	a.Apply(avc.Speed(10), avc.Speed(10))
	if a.last != [2]avc.MotionCommand{avc.Speed(10), avc.Speed(10)} || !a.have {
		t.Fatalf("last=%v", a.last)
	}
}

func TestRunBenchSimGPS(t *testing.T) {
	_, cfg := writeConfig(t, simConfig)
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := runBench(ctx, &out, cfg, "gps", 10*time.Millisecond); err != nil {
		t.Fatalf("runBench() error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "GPS: 39.99") {
		t.Fatalf("out=%q", out.String())
	}
}

func TestRunBenchNoSwitch(t *testing.T) {
	_, cfg := writeConfig(t, "course:\n  waypoints:\n    - {lat: 40.0, lon: -105.0}\n")
	err := runBench(context.Background(), &bytes.Buffer{}, cfg, "switch", time.Millisecond)
	if err == nil || err.Error() != "killswitch.source is none" {
		t.Fatalf("err=%v", err)
	}
}

func TestDataDir(t *testing.T) {
	var cfg config.Config
	if got := dataDir(cfg); got != "." {
		t.Fatalf("dataDir=%q want .", got)
	}
	cfg.Capture.Path = "/var/lib/avc/course.yaml"
	if got := dataDir(cfg); got != "/var/lib/avc" {
		t.Fatalf("dataDir=%q want /var/lib/avc", got)
	}
	cfg.Telemetry.Record.Enable = true
	cfg.Telemetry.Record.Path = "/data/runs/run.log"
	if got := dataDir(cfg); got != "/data/runs" {
		t.Fatalf("dataDir=%q want /data/runs", got)
	}
}
