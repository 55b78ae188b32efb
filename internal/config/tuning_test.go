package config

import (
	"os"
	"strings"
	"testing"
)

func TestUpdateTuning_PatchesSettingsOnly(t *testing.T) {
	const src = "# field test\nsettings:\n  max_speed: 40 # slow\n  sample_count: 4\n" + minimalCourse
	path := writeTempConfig(t, src)

	speed := 90
	gain := 2.5
	on := true
	cfg, err := UpdateTuning(path, Tuning{MaxSpeed: &speed, TurnGain: &gain, EnableMotors: &on})
	if err != nil {
		t.Fatalf("UpdateTuning() error: %v", err)
	}
	if cfg.Settings.MaxSpeed != 90 || cfg.Settings.TurnGain != 2.5 {
		t.Fatalf("settings=%+v", cfg.Settings)
	}
	if cfg.Settings.SampleCount != 4 {
		t.Fatalf("sample_count=%d want 4", cfg.Settings.SampleCount)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(b), "# field test") {
		t.Fatalf("comment lost:\n%s", b)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if again.Settings.MaxSpeed != 90 || again.Settings.EnableMotors == nil || !*again.Settings.EnableMotors {
		t.Fatalf("reloaded settings=%+v", again.Settings)
	}
	if len(again.Course.Waypoints) != 1 {
		t.Fatalf("waypoints=%d want 1", len(again.Course.Waypoints))
	}
}

func TestUpdateTuning_CreatesSettingsSection(t *testing.T) {
	path := writeTempConfig(t, minimalCourse)
	dist := 80
	cfg, err := UpdateTuning(path, Tuning{ObstacleDistance: &dist})
	if err != nil {
		t.Fatalf("UpdateTuning() error: %v", err)
	}
	if cfg.Settings.ObstacleDistance != 80 {
		t.Fatalf("obstacle_distance=%d want 80", cfg.Settings.ObstacleDistance)
	}
}

func TestUpdateTuning_RejectsInvalidAndKeepsFile(t *testing.T) {
	path := writeTempConfig(t, minimalCourse)
	speed := 500
	_, err := UpdateTuning(path, Tuning{MaxSpeed: &speed})
	requireErrEq(t, err, "settings.max_speed must be between 1 and 127")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != minimalCourse {
		t.Fatalf("file changed:\n%s", b)
	}
}
