package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"avc-ng/internal/avc"
)

type courseFile struct {
	Waypoints []avc.Waypoint `yaml:"waypoints"`
}

// LoadCourse reads a waypoint file in the format SaveWaypoints writes.
func LoadCourse(path string) ([]avc.Waypoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f courseFile
	if err := decodeStrict(b, &f); err != nil {
		return nil, fmt.Errorf("course %s: %w", path, err)
	}
	for i, wp := range f.Waypoints {
		if !wp.Location().Valid() {
			return nil, fmt.Errorf("course %s: waypoint %d is out of range", path, i)
		}
	}
	return f.Waypoints, nil
}

// SaveWaypoints replaces the file at path atomically.
func SaveWaypoints(path string, wps []avc.Waypoint) error {
	b, err := yaml.Marshal(courseFile{Waypoints: wps})
	if err != nil {
		return err
	}

	return writeAtomic(path, b)
}

// writeAtomic replaces path through a temp file in the same directory so
// the rename is atomic.
func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// AppendWaypoint adds wp to the course file at path, creating it if needed,
// and returns the new waypoint count.
func AppendWaypoint(path string, wp avc.Waypoint) (int, error) {
	wps, err := LoadCourse(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}
	wps = append(wps, wp)
	if err := SaveWaypoints(path, wps); err != nil {
		return 0, err
	}
	return len(wps), nil
}
