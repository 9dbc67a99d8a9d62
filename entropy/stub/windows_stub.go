//go:build windows

package stub

import (
	"time"

	"golang.org/x/sys/cpu"
)

// HasRDRAND reports whether the running CPU advertises RDRAND.
func HasRDRAND() bool {
	return cpu.X86.HasRDRAND
}

// HighResTime returns a monotonic timestamp; Windows has no cheap
// CLOCK_MONOTONIC equivalent exposed here, so this falls back to the
// runtime clock the same way the teacher's windows stub falls back to a
// zero Stat_t rather than a real syscall.
func HighResTime() uint64 {
	return uint64(time.Now().UnixNano())
}
