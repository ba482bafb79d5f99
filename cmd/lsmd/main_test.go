package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOptionsEmptyPathReturnsValidDevelopmentDefaults(t *testing.T) {
	opts, err := loadOptions("")
	if err != nil {
		t.Fatalf("loadOptions failed: %v", err)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("expected the development-default options to validate, got %v", err)
	}
	if opts.MetaSealPassphrase == "" || opts.HostJWTSecret == "" {
		t.Error("expected loadOptions to fill in development secrets when no config path is given")
	}
}

func TestLoadOptionsReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsmd.yaml")
	body := "memtable_bytes: 8388608\n" +
		"level0_max: 4\n" +
		"level1_max: 10\n" +
		"max_open_children: 64\n" +
		"read_cache_capacity: 1024\n" +
		"gc_threshold: 50\n" +
		"gc_block_num: 4\n" +
		"pool_workers: 4\n" +
		"meta_seal_passphrase: a-config-file-passphrase\n" +
		"host_jwt_secret: a-config-file-host-jwt-secret-32-bytes!\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	opts, err := loadOptions(path)
	if err != nil {
		t.Fatalf("loadOptions failed: %v", err)
	}
	if opts.MetaSealPassphrase != "a-config-file-passphrase" {
		t.Errorf("expected the passphrase from the config file, got %q", opts.MetaSealPassphrase)
	}
}

func TestLoadOptionsRejectsMissingFile(t *testing.T) {
	if _, err := loadOptions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected loadOptions to fail for a nonexistent config path")
	}
}
