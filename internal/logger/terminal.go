//go:build !linux && !windows

package logger

import (
	"os"
)

// isTerminal reports whether fd is attached to a terminal.
// Conservative fallback for platforms without a specific implementation.
func isTerminal(fd uintptr) bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
