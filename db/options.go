package db

import "github.com/nvmekv/ssdlsm/internal/config"

// Options is the full set of build-time parameters Open needs: memtable
// sizing, packing strategy, compaction thresholds, cache/pool sizing, and
// the metadata-channel secrets (spec §6).
type Options = config.Options

// DefaultOptions returns an Options populated with spec-cited defaults.
// Callers must still supply MetaSealPassphrase and HostJWTSecret.
func DefaultOptions() Options {
	return config.Default()
}
