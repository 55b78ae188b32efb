package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/telemetry"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Deps are the pieces of the running vehicle the operator UI reaches into.
// Only Shared is required.
type Deps struct {
	Shared   *avc.Shared
	Status   *Status
	Settings SettingsStore
	Capture  CaptureStore
	Logs     *LogBuffer
	// Telemetry serves the live websocket feed.
	Telemetry http.Handler
}

func Handler(d Deps) http.Handler {
	mux := http.NewServeMux()

	status := d.Status
	if status == nil {
		status = NewStatus(d.Shared)
	}

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, d.Shared.Read())
	})

	mux.HandleFunc("/api/overlay", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		for _, line := range telemetry.FormatOverlay(d.Shared.Read(), time.Now()) {
			_, _ = w.Write([]byte(line))
			_, _ = w.Write([]byte("\n"))
		}
	})

	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if !d.Shared.RequestStart() {
			http.Error(w, fmt.Sprintf("vehicle is not waiting to start (mode=%s)", d.Shared.Mode()), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, modeResponse{OK: true, Mode: d.Shared.Mode()})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if !d.Shared.Abort() {
			http.Error(w, fmt.Sprintf("run already over (mode=%s)", d.Shared.Mode()), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, modeResponse{OK: true, Mode: d.Shared.Mode()})
	})

	mux.Handle("/api/waypoints", d.Capture.Handler())
	mux.Handle("/api/waypoints/capture", d.Capture.Handler())
	mux.Handle("/api/settings", d.Settings.Handler())

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	if d.Telemetry != nil {
		mux.Handle("/api/telemetry", d.Telemetry)
	}

	mux.Handle("/api/about", AboutHandler())

	if assetsFS != nil {
		fileServer := http.FileServer(http.FS(assetsFS))
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			fileServer.ServeHTTP(w, r)
		})))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			if dir := path.Dir(r.URL.Path); dir == "/api" || strings.HasPrefix(dir, "/api/") || dir == "/assets" {
				http.NotFound(w, r)
				return
			}
		}

		if assetsFS == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>avc-ng</title></head><body>")
			_, _ = fmt.Fprintf(w, "<h1>avc-ng</h1><pre>mode=%s</pre>", d.Shared.Mode())
			_, _ = fmt.Fprintf(w, "<p>Use <a href=\"/api/status\">/api/status</a>.</p></body></html>")
			return
		}

		b, err := fs.ReadFile(assetsFS, "index.html")
		if err != nil {
			http.Error(w, "ui unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	return mux
}

type modeResponse struct {
	OK   bool     `json:"ok"`
	Mode avc.Mode `json:"mode"`
}

// allowMethod answers 405 and reports false unless r uses one of methods.
func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs the operator UI until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: /api/telemetry holds its connection for the whole run.
		IdleTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
