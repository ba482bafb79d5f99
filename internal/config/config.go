// Package config holds the engine's build-time parameters (spec §6's
// DB_INIT fields plus the operational knobs spec.md leaves to the
// implementation: packing strategy, compaction thresholds, cache size,
// pool size), validated with struct tags before Open and loadable from
// YAML for cmd/lsmd.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvmekv/ssdlsm/internal/compaction"
	"github.com/nvmekv/ssdlsm/internal/driver"
	"github.com/nvmekv/ssdlsm/internal/sstable"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Options is the full set of build-time parameters an Open call needs.
type Options struct {
	// MemtableBytes is the soft size limit that triggers a memtable
	// rotation and async flush (spec §4.2).
	MemtableBytes int `yaml:"memtable_bytes" validate:"required,min=4096"`

	// PackingStrategy selects the SSTable layout (spec §4.4).
	PackingStrategy sstable.PackingType `yaml:"packing_strategy" validate:"gte=0,lte=2"`

	// Level0Max/Level1Max are the compaction trigger thresholds (spec
	// §4.7); LEVEL_k_MAX for k>=2 derives from Level1Max.
	Level0Max int `yaml:"level0_max" validate:"required,min=1"`
	Level1Max int `yaml:"level1_max" validate:"required,min=1"`

	// MaxOpenChildren caps concurrently-open SSTable iterators per
	// Level-N iterator (spec §4.6).
	MaxOpenChildren int `yaml:"max_open_children" validate:"required,min=1"`

	// ReadCacheCapacity is the range-key-cache's file capacity (spec
	// §4.10, RANGE_KEY_CACHE_SIZE default 30).
	ReadCacheCapacity int `yaml:"read_cache_capacity" validate:"required,min=1"`

	// GCThreshold is the minimum live-ratio below which a value-log
	// block becomes GC-eligible (spec §4.3); GCBlockNum is how many
	// blocks one GC pass reclaims.
	GCThreshold int `yaml:"gc_threshold" validate:"min=0,max=100"`
	GCBlockNum  int `yaml:"gc_block_num" validate:"required,min=1"`

	// PoolWorkers sizes the background task pool (flush/compaction/GC).
	PoolWorkers int `yaml:"pool_workers" validate:"required,min=1"`

	// MetaSealPassphrase derives the AES-256-GCM key (via PBKDF2-SHA256)
	// that seals the out-of-band metadata/command channel (spec §6).
	MetaSealPassphrase string `yaml:"meta_seal_passphrase" validate:"required,min=8"`

	// HostJWTSecret signs the host-info token carried on open_DB (spec
	// §6); must be at least 32 bytes per HS256's minimum-entropy use.
	HostJWTSecret string `yaml:"host_jwt_secret" validate:"required,min=32"`

	// LogLevel controls internal/logging's verbosity ("debug", "info",
	// "warn", "error").
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// SearchPattern selects the wire shape of the search-offload request
	// built for a lookup (spec §6: SEARCH_PATTERN).
	SearchPattern driver.SearchPattern `yaml:"search_pattern" validate:"gte=0,lte=1"`
}

// Default returns an Options populated with spec-cited defaults (spec
// §4.7's LEVEL0_MAX=4/LEVEL1_MAX=10, §4.6's max_open_children=64, §4.10's
// RANGE_KEY_CACHE_SIZE=30), leaving the two secrets empty — callers must
// supply those explicitly.
func Default() Options {
	t := compaction.DefaultThresholds()
	return Options{
		MemtableBytes:     4 * 1024 * 1024,
		PackingStrategy:   sstable.PackingKeyPerPage,
		Level0Max:         t.Level0Max,
		Level1Max:         t.Level1Max,
		MaxOpenChildren:   64,
		ReadCacheCapacity: 30,
		GCThreshold:       50,
		GCBlockNum:        4,
		PoolWorkers:       2,
		LogLevel:          "info",
		SearchPattern:     driver.SearchPatternDescriptor,
	}
}

// Validate runs struct-tag validation and returns the first failure in a
// human-readable form, per the teacher's validator-singleton pattern.
func (o Options) Validate() error {
	if err := getValidator().Struct(o); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// LoadYAML reads and validates an Options from a YAML file (cmd/lsmd's
// config loader).
func LoadYAML(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	opts := Default()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Thresholds converts Options into compaction.Thresholds.
func (o Options) Thresholds() compaction.Thresholds {
	return compaction.Thresholds{Level0Max: o.Level0Max, Level1Max: o.Level1Max}
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()
		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}
	return err
}
