//go:build linux

package web

import (
	"net"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

func snapshotDisk(dir string, _ time.Time) *DiskSnapshot {
	if dir == "" {
		dir = "/"
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return &DiskSnapshot{Path: dir, LastError: err.Error()}
	}
	bsize := uint64(st.Bsize)
	return &DiskSnapshot{
		Path:       dir,
		TotalBytes: st.Blocks * bsize,
		AvailBytes: st.Bavail * bsize,
	}
}

// snapshotNetwork lists up, non-loopback IPv4 addresses as "iface: cidr".
func snapshotNetwork(_ time.Time) *NetworkSnapshot {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil || ipnet.IP.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, iface.Name+": "+ipnet.String())
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return &NetworkSnapshot{LocalAddrs: out}
}
