//go:build !linux

package web

import "time"

func snapshotDisk(string, time.Time) *DiskSnapshot { return nil }

func snapshotNetwork(time.Time) *NetworkSnapshot { return nil }
