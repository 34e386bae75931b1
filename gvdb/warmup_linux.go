//go:build linux

package gvdb

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// warmupRandom hints to the kernel that the file will be accessed with a
// random access pattern, the way compactindexsized.Open does for its
// own backing file before hash-table traversal. Best-effort: failures
// are logged, never returned, since this is purely a performance hint.
func warmupRandom(f fileDescriptor) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM); err != nil {
		slog.Warn("gvdb: fadvise(RANDOM) failed", "file", f.Name(), "error", err)
	}
}
