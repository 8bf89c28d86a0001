// Package config loads memvault's two-tier configuration: a process-wide
// YAML config (user + project, merged, then overridden by environment
// variables) carrying defaults, and a per-scope config.json carrying the
// scope policies named in the external interface contract
// (search weights, storage backend choice, cache budgets).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BM25Config holds the inverted index's scoring parameters.
type BM25Config struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// Boosts holds the additive scoring multipliers applied on top of BM25.
type Boosts struct {
	Title      float64 `yaml:"title" json:"title"`
	Pinned     float64 `yaml:"pinned" json:"pinned"`
	ExactMatch float64 `yaml:"exact_match" json:"exact_match"`
	Recent     float64 `yaml:"recent" json:"recent"`
}

// VectorConfig holds the ANN index's runtime options.
type VectorConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	WeightFloor float64 `yaml:"weight_floor" json:"weight_floor"`
	WeightCeil  float64 `yaml:"weight_ceiling" json:"weight_ceiling"`
	// OrphanThreshold is the lazily-deleted-node fraction that triggers
	// an automatic vector.Index.Compact() after a delete or maintenance
	// pass; see vector.CompactTombstoneRatio for the package default.
	OrphanThreshold float64 `yaml:"orphan_threshold" json:"orphan_threshold"`
}

// SearchConfig groups every search-tuning option the core recognizes.
type SearchConfig struct {
	BM25   BM25Config   `yaml:"bm25" json:"bm25"`
	Boosts Boosts       `yaml:"boosts" json:"boosts"`
	Vector VectorConfig `yaml:"vector" json:"vector"`
}

// CacheConfig holds byte budgets for the payload/frame caches.
type CacheConfig struct {
	PayloadMB int `yaml:"payload_mb" json:"payload_mb"`
	FrameMB   int `yaml:"frame_mb" json:"frame_mb"`
}

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	Backend        string      `yaml:"backend" json:"backend"`                   // "file" | "video"
	OnCodecMissing string      `yaml:"on_codec_missing" json:"on_codec_missing"` // "fail" | "fallback"
	Cache          CacheConfig `yaml:"cache" json:"cache"`
}

// VideoConfig tunes the video codec adapter's encode parameters.
type VideoConfig struct {
	Codec  string `yaml:"codec" json:"codec"` // h264 | h265
	CRF    int    `yaml:"crf" json:"crf"`
	GOP    int    `yaml:"gop" json:"gop"`
	Preset string `yaml:"preset" json:"preset"`
}

// QRConfig tunes the QR codec's parameter selection.
type QRConfig struct {
	ECC     string `yaml:"ecc" json:"ecc"`         // L | M | Q | H
	Version string `yaml:"version" json:"version"` // "auto" or a number as a string
}

// SecurityConfig carries default sensitivity and redaction policy.
type SecurityConfig struct {
	SensitivityDefault string `yaml:"sensitivity_default" json:"sensitivity_default"`
	SecretRedaction    bool   `yaml:"secret_redaction" json:"secret_redaction"`
}

// JournalConfig tunes journal compaction and fsync batching.
type JournalConfig struct {
	CompactThresholdEntries int `yaml:"compact_threshold_entries" json:"compact_threshold_entries"`
	FsyncBatch              int `yaml:"fsync_batch" json:"fsync_batch"`
}

// Config is the complete scope configuration, loadable as a process-wide
// YAML default layer or as a per-scope config.json.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Video    VideoConfig    `yaml:"video" json:"video"`
	QR       QRConfig       `yaml:"qr" json:"qr"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	LogLevel string         `yaml:"log_level" json:"log_level"`
}

// Default returns a Config populated with the defaults named throughout
// the component design (BM25 k1/b, boost multipliers, codec defaults,
// compaction threshold).
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			BM25: BM25Config{K1: 1.2, B: 0.75},
			Boosts: Boosts{
				Title:      2.0,
				Pinned:     2.0,
				ExactMatch: 3.0,
				Recent:     1.3,
			},
			Vector: VectorConfig{Enabled: true, WeightFloor: 0.2, WeightCeil: 0.8, OrphanThreshold: 0.2},
		},
		Storage: StorageConfig{
			Backend:        "file",
			OnCodecMissing: "fallback",
			Cache:          CacheConfig{PayloadMB: 256, FrameMB: 64},
		},
		Video: VideoConfig{Codec: "h264", CRF: 23, GOP: 30, Preset: "medium"},
		QR:    QRConfig{ECC: "M", Version: "auto"},
		Security: SecurityConfig{
			SensitivityDefault: "private",
			SecretRedaction:    true,
		},
		Journal: JournalConfig{
			CompactThresholdEntries: 10000,
			FsyncBatch:              1,
		},
		LogLevel: "info",
	}
}

// UserConfigPath returns the process-wide user config path, following
// the XDG base directory spec.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memvault", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "memvault", "config.yaml")
	}
	return filepath.Join(home, ".config", "memvault", "config.yaml")
}

// Load builds the process-wide configuration by merging, in increasing
// precedence: hardcoded defaults, the user config
// (~/.config/memvault/config.yaml), a project config (.memvault.yaml
// found by walking up from dir), and MEMVAULT_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if err := mergeYAMLFile(cfg, UserConfigPath()); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}

	if projectPath := findProjectConfig(dir); projectPath != "" {
		if err := mergeYAMLFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("load project config %s: %w", projectPath, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// mergeYAMLFile unmarshals path onto cfg if it exists; a missing file is
// not an error.
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// findProjectConfig walks up from dir looking for .memvault.yaml/.yml or
// a .git directory, returning the config path if found within the repo
// root, or "" if neither exists.
func findProjectConfig(dir string) string {
	current := dir
	for {
		for _, name := range []string{".memvault.yaml", ".memvault.yml"} {
			p := filepath.Join(current, name)
			if fileExists(p) {
				return p
			}
		}
		if fileExists(filepath.Join(current, ".git")) {
			return ""
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// applyEnvOverrides applies MEMVAULT_* environment variables, the
// highest-precedence override layer.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envFloat("MEMVAULT_BM25_K1"); ok {
		cfg.Search.BM25.K1 = v
	}
	if v, ok := envFloat("MEMVAULT_BM25_B"); ok {
		cfg.Search.BM25.B = v
	}
	if v := os.Getenv("MEMVAULT_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("MEMVAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadScopeConfig reads the per-scope config.json at scopeRoot, falling
// back to Default() if it does not yet exist.
func LoadScopeConfig(scopeRoot string) (*Config, error) {
	path := filepath.Join(scopeRoot, "config.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveScopeConfig atomically writes cfg as scopeRoot/config.json.
func SaveScopeConfig(scopeRoot string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(scopeRoot, "config.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
