package config

import "time"

// StageConfig controls download, verification, and extraction.
type StageConfig struct {
	// CacheDir holds staged roots, one directory per cache key.
	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`

	// Entrypoints are candidate paths (relative to the staged root) that get
	// the executable bit. At least one must exist after extraction.
	Entrypoints []string `yaml:"entrypoints" toml:"entrypoints"`

	// Attempts bounds download tries for transient network failures.
	Attempts int `yaml:"attempts" toml:"attempts"`

	// Backoff is the initial delay between download attempts.
	Backoff Duration `yaml:"backoff" toml:"backoff"`

	// Timeout bounds a single download attempt.
	Timeout Duration `yaml:"timeout" toml:"timeout"`

	// MaxDownloadBytes caps the artifact size. Zero means no cap.
	MaxDownloadBytes int64 `yaml:"max_download_bytes" toml:"max_download_bytes"`
}

// DefaultStageConfig returns sensible staging defaults.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		CacheDir:         ".artifreight/cache",
		Entrypoints:      []string{"bedrock_server"},
		Attempts:         3,
		Backoff:          Duration(2 * time.Second),
		Timeout:          Duration(10 * time.Minute),
		MaxDownloadBytes: 2 << 30,
	}
}
