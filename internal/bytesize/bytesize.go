// Package bytesize parses the human-readable sizes used in configuration,
// like "100MB" upload thresholds or "1Gi" admission budgets.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes decoded from values like "1Gi", "500Mi",
// "100MB" or a plain number of bytes.
type ByteSize uint64

const (
	B ByteSize = 1

	// Decimal units (×1000).
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	// Binary units (×1024).
	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

// multiplier resolves a lowercased unit suffix. The empty suffix means
// plain bytes.
func multiplier(unit string) (ByteSize, bool) {
	switch unit {
	case "", "b":
		return B, true
	case "k", "kb":
		return KB, true
	case "m", "mb":
		return MB, true
	case "g", "gb":
		return GB, true
	case "ki", "kib":
		return KiB, true
	case "mi", "mib":
		return MiB, true
	case "gi", "gib":
		return GiB, true
	}
	return 0, false
}

// ParseByteSize parses a size string: an unsigned integer followed by an
// optional unit suffix, with optional whitespace around either part.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := len(trimmed)
	for split > 0 {
		c := trimmed[split-1]
		if c >= '0' && c <= '9' {
			break
		}
		split--
	}
	digits := strings.TrimSpace(trimmed[:split])
	unit := strings.ToLower(strings.TrimSpace(trimmed[split:]))

	num, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	mult, ok := multiplier(unit)
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", unit)
	}
	return ByteSize(num) * mult, nil
}

// String renders the size in the largest binary unit that fits, matching
// how the configuration reports limits back in error messages.
func (b ByteSize) String() string {
	switch {
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}
