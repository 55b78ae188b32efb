package web

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"avc-ng/internal/avc"
	"avc-ng/internal/config"
)

// CaptureStore records the vehicle's current fix as the next waypoint of a
// course file, so a course can be built by walking it.
type CaptureStore struct {
	Path     string
	Position avc.PositionSource
}

type waypointsResponse struct {
	Path      string         `json:"path"`
	Waypoints []avc.Waypoint `json:"waypoints"`
}

type captureResponse struct {
	Index    int          `json:"index"`
	Count    int          `json:"count"`
	Waypoint avc.Waypoint `json:"waypoint"`
}

// Handler serves GET /api/waypoints and POST /api/waypoints/capture.
func (c CaptureStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(c.Path) == "" {
			http.Error(w, "waypoint capture not configured", http.StatusNotImplemented)
			return
		}

		if strings.HasSuffix(r.URL.Path, "/capture") {
			if !allowMethod(w, r, http.MethodPost) {
				return
			}
			c.capture(w)
			return
		}

		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		wps, err := config.LoadCourse(c.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
			return
		}
		if wps == nil {
			wps = []avc.Waypoint{}
		}
		writeJSON(w, http.StatusOK, waypointsResponse{Path: c.Path, Waypoints: wps})
	})
}

func (c CaptureStore) capture(w http.ResponseWriter) {
	if c.Position == nil {
		http.Error(w, "no position source", http.StatusServiceUnavailable)
		return
	}
	loc, ok := c.Position.Position()
	if !ok {
		http.Error(w, "no position fix", http.StatusServiceUnavailable)
		return
	}
	wp := avc.Waypoint{Lat: loc.Lat, Lon: loc.Lon}
	n, err := config.AppendWaypoint(c.Path, wp)
	if err != nil {
		http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
		return
	}
	log.Printf("web waypoint captured index=%d lat=%.7f lon=%.7f path=%s", n-1, wp.Lat, wp.Lon, c.Path)
	writeJSON(w, http.StatusOK, captureResponse{Index: n - 1, Count: n, Waypoint: wp})
}
