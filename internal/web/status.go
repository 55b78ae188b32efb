package web

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"avc-ng/internal/avc"
	"avc-ng/internal/telemetry"
)

// Status assembles /api/status from the shared navigation snapshot and
// whatever device services registered themselves.
type Status struct {
	startUnixNano int64
	shared        *avc.Shared
	configPath    atomic.Value // string
	dataDir       atomic.Value // string

	mu        sync.Mutex
	devices   map[string]func() any
	telemetry func() map[string]telemetry.SinkStats
}

func NewStatus(shared *avc.Shared) *Status {
	s := &Status{
		shared:  shared,
		devices: make(map[string]func() any),
	}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.configPath.Store("")
	s.dataDir.Store("")
	return s
}

func (s *Status) SetConfigPath(p string) { s.configPath.Store(p) }

// SetDataDir selects the filesystem reported under disk.
func (s *Status) SetDataDir(dir string) { s.dataDir.Store(dir) }

// AddDevice registers a snapshot provider shown under devices.<name>.
func (s *Status) AddDevice(name string, snapshot func() any) {
	if snapshot == nil {
		return
	}
	s.mu.Lock()
	s.devices[name] = snapshot
	s.mu.Unlock()
}

func (s *Status) SetTelemetry(stats func() map[string]telemetry.SinkStats) {
	s.mu.Lock()
	s.telemetry = stats
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service   string                         `json:"service"`
	NowUTC    string                         `json:"now_utc"`
	UptimeSec int64                          `json:"uptime_sec"`
	Version   string                         `json:"version,omitempty"`
	Config    string                         `json:"config,omitempty"`
	Nav       avc.NavigationState            `json:"nav"`
	Devices   map[string]any                 `json:"devices"`
	Telemetry map[string]telemetry.SinkStats `json:"telemetry,omitempty"`
	Disk      *DiskSnapshot                  `json:"disk,omitempty"`
	Network   *NetworkSnapshot               `json:"network,omitempty"`
}

// DeviceNames lists registered devices in name order.
func (s *Status) DeviceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.devices))
	for name := range s.devices {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	s.mu.Lock()
	devices := make(map[string]func() any, len(s.devices))
	for k, v := range s.devices {
		devices[k] = v
	}
	stats := s.telemetry
	s.mu.Unlock()

	snap := StatusSnapshot{
		Service:   "avc-ng",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Config:    s.configPath.Load().(string),
		Devices:   make(map[string]any, len(devices)),
		Version:   buildVersion(),
		Disk:      snapshotDisk(s.dataDir.Load().(string), nowUTC),
		Network:   snapshotNetwork(nowUTC),
	}
	if s.shared != nil {
		snap.Nav = s.shared.Read()
	}
	// Providers take their own locks; call them outside ours.
	for name, fn := range devices {
		snap.Devices[name] = fn()
	}
	if stats != nil {
		snap.Telemetry = stats()
	}
	return snap
}
