package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatFileName renders an SSTable sequence number as the fixed
// 35-character zero-padded decimal name spec §6 requires; lexicographic
// comparison of these names then coincides with numeric comparison.
func FormatFileName(seq uint32) string {
	return fmt.Sprintf("%0*d", FileNameWidth, seq)
}

// ParseFileName recovers the sequence number from a formatted file name.
func ParseFileName(name string) (uint32, error) {
	trimmed := strings.TrimLeft(name, "0")
	if trimmed == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("driver: malformed sstable file name %q: %w", name, err)
	}
	return uint32(v), nil
}
