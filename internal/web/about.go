package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// AboutResponse identifies the running build.
type AboutResponse struct {
	Service    string `json:"service"`
	NowUTC     string `json:"now_utc"`
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

func readBuild() AboutResponse {
	out := AboutResponse{Service: "avc-ng", GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath, out.Version = bi.Main.Path, bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		case "vcs.time":
			out.BuildTime = s.Value
		}
	}
	return out
}

// buildVersion is the short form shown in /api/status: the module version,
// or the first 12 commit characters for a development build.
func buildVersion() string {
	b := readBuild()
	v := b.Version
	if (v == "" || v == "(devel)") && b.Commit != "" {
		v = b.Commit
		if len(v) > 12 {
			v = v[:12]
		}
		if b.Dirty {
			v += "+dirty"
		}
	}
	return v
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		resp := readBuild()
		resp.NowUTC = time.Now().UTC().Format(time.RFC3339Nano)
		writeJSON(w, http.StatusOK, resp)
	})
}
