//go:build !linux

package gvdb

// warmupRandom is a no-op on platforms without fadvise.
func warmupRandom(f fileDescriptor) {}
