//go:build !windows
// +build !windows

package stub

import (
	"time"

	"golang.org/x/sys/cpu"
	"golang.org/x/sys/unix"
)

// HasRDRAND reports whether the running CPU advertises RDRAND, mirroring
// the teacher's stub split: one tiny platform-specific file per OS, no
// build-tag branching inside shared code.
func HasRDRAND() bool {
	return cpu.X86.HasRDRAND
}

// HighResTime returns a monotonic timestamp. The entropy collector always
// records it as the "time" sample, and its RDRAND placeholder reads it too.
func HighResTime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
