package web

// DiskSnapshot is the free space where recordings and captured courses
// are written.
type DiskSnapshot struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes,omitempty"`
	AvailBytes uint64 `json:"avail_bytes,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// NetworkSnapshot lists the addresses an operator can reach the UI on.
type NetworkSnapshot struct {
	LocalAddrs []string `json:"local_addrs,omitempty"`
}
