package main

import (
	"context"
	"errors"
	"log"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/config"
	"avc-ng/internal/replay"
	"avc-ng/internal/telemetry"
	"avc-ng/internal/web"
)

// runReplay feeds a telemetry recording through a fresh shared snapshot so
// the web UI shows the run as it happened. Motors are never touched.
func runReplay(ctx context.Context, cfg config.Config, path string, speed float64, logs *web.LogBuffer) error {
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}
	shared := avc.NewShared()
	hub := telemetry.NewHub()
	tele := telemetry.New(shared, telemetry.Config{Interval: cfg.Telemetry.Interval}, hub)
	if err := tele.Start(ctx); err != nil {
		return err
	}
	defer tele.Close()

	status := web.NewStatus(shared)
	status.SetTelemetry(tele.Stats)
	h := web.Handler(web.Deps{Shared: shared, Status: status, Logs: logs, Telemetry: hub})
	go func() {
		log.Printf("web listening addr=%s replay=%s", cfg.Web.Listen, path)
		if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
			log.Printf("web server stopped: %v", err)
		}
	}()

	err = replay.Play(recs, speed, false, ctxSleeper{ctx}, func(st avc.NavigationState) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !shared.Publish(st) {
			return errReplayAborted
		}
		return nil
	})
	if err != nil && !errors.Is(err, errReplayAborted) {
		return err
	}
	log.Printf("replay done mode=%s; serving until interrupted", shared.Mode())
	<-ctx.Done()
	return nil
}

var errReplayAborted = errors.New("replay: recording reached aborted")

// ctxSleeper cuts waits short once ctx ends.
type ctxSleeper struct{ ctx context.Context }

func (s ctxSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
	case <-t.C:
	}
}
