package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/config"
	"avc-ng/internal/telemetry"
	"avc-ng/internal/web"
)

func main() {
	var (
		configPath  string
		testGPS     bool
		testCompass bool
		testSwitch  bool
		testMotors  bool
		replayPath  string
		replaySpeed float64
		summaryPath string
	)
	flag.StringVar(&configPath, "config", "./avc.yaml", "Path to YAML config")
	flag.BoolVar(&testGPS, "test-gps", false, "Print the GPS fix once a second")
	flag.BoolVar(&testCompass, "test-compass", false, "Print the compass heading once a second")
	flag.BoolVar(&testSwitch, "test-switch", false, "Print the kill switch state once a second")
	flag.BoolVar(&testMotors, "test-motors", false, "Query the motor controller and exit")
	flag.StringVar(&replayPath, "replay", "", "Serve a telemetry recording on the web UI instead of driving")
	flag.Float64Var(&replaySpeed, "replay-speed", 1, "Replay speed multiplier")
	flag.StringVar(&summaryPath, "summary", "", "Summarize a telemetry recording and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printRunSummary(os.Stdout, summaryPath); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case testGPS, testCompass, testSwitch:
		err = runBench(ctx, os.Stdout, cfg, benchKind(testGPS, testCompass), time.Second)
	case testMotors:
		err = runMotorCheck(ctx, os.Stdout, cfg)
	case replayPath != "":
		err = runReplay(ctx, cfg, replayPath, replaySpeed, logs)
	default:
		err = runCourse(ctx, cfg, configPath, logs)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatalf("avc-ng: %v", err)
	}
}

func benchKind(gps, compass bool) string {
	switch {
	case gps:
		return "gps"
	case compass:
		return "compass"
	default:
		return "switch"
	}
}

// runCourse drives the configured course once, with the web UI and
// telemetry sinks running alongside.
func runCourse(ctx context.Context, cfg config.Config, configPath string, logs *web.LogBuffer) error {
	log.Printf("avc-ng starting waypoints=%d motors=%s enable_motors=%t",
		len(cfg.Course.Waypoints), cfg.Motors.Driver, *cfg.Settings.EnableMotors)

	r, err := newRig(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	shared := avc.NewShared()

	// SIGINT/SIGTERM abort the run; the runner still brakes and waits for
	// telemetry before returning.
	go func() {
		<-ctx.Done()
		shared.Abort()
	}()
	runCtx := context.WithoutCancel(ctx)

	var hub *telemetry.Hub
	if cfg.Web.Enable {
		hub = telemetry.NewHub()
	}
	sinks := buildSinks(cfg.Telemetry, hub)
	tele := telemetry.New(shared, telemetry.Config{Interval: cfg.Telemetry.Interval}, sinks...)
	if err := tele.Start(runCtx); err != nil {
		return err
	}
	defer tele.Close()

	webCtx, stopWeb := context.WithCancel(runCtx)
	defer stopWeb()
	if cfg.Web.Enable {
		status := web.NewStatus(shared)
		status.SetConfigPath(configPath)
		status.SetDataDir(dataDir(cfg))
		status.SetTelemetry(tele.Stats)
		r.register(status)

		h := web.Handler(web.Deps{
			Shared: shared,
			Status: status,
			Settings: web.SettingsStore{
				ConfigPath: configPath,
				Saved: func(c config.Config) {
					log.Printf("settings saved max_speed=%d turn_gain=%g obstacle_distance=%d enable_motors=%t (next run)",
						c.Settings.MaxSpeed, c.Settings.TurnGain, c.Settings.ObstacleDistance, *c.Settings.EnableMotors)
				},
			},
			Capture:   web.CaptureStore{Path: cfg.Capture.Path, Position: r.devices.Position},
			Logs:      logs,
			Telemetry: hub,
		})
		go func() {
			log.Printf("web listening addr=%s", cfg.Web.Listen)
			if err := web.Serve(webCtx, cfg.Web.Listen, h); err != nil && webCtx.Err() == nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
	}

	runner := avc.NewRunner(cfg.AvcSettings(), shared, r.devices, tele)
	res, err := runner.Run(runCtx, cfg.Course.Waypoints)
	if err != nil {
		shared.Abort()
		return err
	}
	log.Printf("avc-ng stopping mode=%s reached=%d/%d", res.Mode, res.Reached, len(cfg.Course.Waypoints))
	if res.Mode.Kind != avc.ModeFinished {
		return fmt.Errorf("course not finished: %s", res.Mode)
	}
	return nil
}

// dataDir is where recordings and captured waypoints land; /api/status
// reports free space there.
func dataDir(cfg config.Config) string {
	switch {
	case cfg.Telemetry.Record.Enable && cfg.Telemetry.Record.Path != "":
		return filepath.Dir(cfg.Telemetry.Record.Path)
	case cfg.Capture.Path != "":
		return filepath.Dir(cfg.Capture.Path)
	}
	return "."
}

// buildSinks creates the telemetry sinks the config enables. A sink that
// cannot be created is logged and skipped; telemetry never blocks a run.
func buildSinks(c config.TelemetryConfig, hub *telemetry.Hub) []telemetry.Sink {
	var sinks []telemetry.Sink
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if c.Record.Enable {
		rec, err := telemetry.NewRecorder(c.Record.Path)
		if err != nil {
			log.Printf("telemetry record disabled: %v", err)
		} else {
			sinks = append(sinks, rec)
		}
	}
	if c.UDP.Enable {
		u, err := telemetry.NewUDP(c.UDP.Dest)
		if err != nil {
			log.Printf("telemetry udp disabled: %v", err)
		} else {
			sinks = append(sinks, u)
		}
	}
	if c.NATS.Enable {
		n, err := telemetry.NewNATS(c.NATS.URL, c.NATS.Subject)
		if err != nil {
			log.Printf("telemetry nats disabled: %v", err)
		} else {
			sinks = append(sinks, n)
		}
	}
	if c.Redis.Enable {
		sinks = append(sinks, telemetry.NewRedis(c.Redis.Addr, c.Redis.Key, c.Redis.Channel))
	}
	return sinks
}
