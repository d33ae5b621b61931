// Copyright 2025 The nearcore Go authors
// This file is part of the nearcore Go state sync core.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package config loads the TOML sync configuration a node starts with, the
// same way the teacher's node command line loads its own config.toml: a
// naoina/toml decoder tolerant of unknown fields (forward-compatible with
// newer config versions than the binary understands).
package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"
)

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, field string) string { return field },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return nil
	},
}

// ExternalStorageConfig names the object-store backend and its location.
// Exactly one of Bucket/Region (S3, GCS) or Root (filesystem) applies,
// selected by Backend.
type ExternalStorageConfig struct {
	Backend string // "s3", "gcs", "filesystem", "azure"
	Bucket  string
	Region  string
	Root    string

	// Azure only.
	Account   string
	Container string

	NumConcurrentRequests        int64
	NumConcurrentRequestsCatchup int64
}

// SyncConfig is the top-level configuration for one state sync session,
// loadable from a node's config.toml.
type SyncConfig struct {
	ChainID string
	Timeout time.Duration
	Catchup bool

	// Mode is "peers" or "external_storage". When "external_storage",
	// External must be populated.
	Mode     string
	External ExternalStorageConfig
}

// Load reads and decodes a SyncConfig from the TOML file at path.
func Load(path string) (*SyncConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	if err := tomlSettings.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a SyncConfig with the same timeout the original reference
// implementation defaults to.
func Default() *SyncConfig {
	return &SyncConfig{
		Mode:    "peers",
		Timeout: 60 * time.Second,
	}
}
