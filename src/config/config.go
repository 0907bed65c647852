package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".artifreight.yml"

// Environment overrides, applied after the config file.
const (
	EnvImage         = "ARTIFREIGHT_IMAGE"
	EnvLatestVersion = "ARTIFREIGHT_LATEST_VERSION"
	EnvForce         = "ARTIFREIGHT_FORCE"
	EnvLogLevel      = "ARTIFREIGHT_LOG_LEVEL"
)

// Config is the top-level artifreight configuration. One value lives for the
// duration of a single pipeline run and is handed to each component's
// constructor; nothing reads configuration from package state.
type Config struct {
	Artifact ArtifactConfig `yaml:"artifact" toml:"artifact"`
	Stage    StageConfig    `yaml:"stage" toml:"stage"`
	Image    ImageConfig    `yaml:"image" toml:"image"`
	Registry RegistryConfig `yaml:"registry" toml:"registry"`
	Release  ReleaseConfig  `yaml:"release" toml:"release"`
	Secrets  SecretsConfig  `yaml:"secrets" toml:"secrets"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Log      LogConfig      `yaml:"log" toml:"log"`

	// Path is the file the config was read from, empty for pure defaults.
	Path string `yaml:"-" toml:"-"`
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	// Textfile is where counters are written at the end of a run, for the
	// node-exporter textfile collector. Empty disables the export.
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// Load reads configuration from a YAML or TOML file.
// If path is empty, it tries the default file.
// Returns sensible defaults if the default file doesn't exist.
// A .env file in the working directory is loaded first; it never overrides
// variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// decode picks the decoder from the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnv layers environment overrides on top of file values.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvImage)); v != "" {
		cfg.Registry.Image = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLatestVersion)); v != "" {
		cfg.Artifact.LatestKnown = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
}

// Truthy reports whether s reads as an affirmative flag value.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func defaults() *Config {
	return &Config{
		Artifact: DefaultArtifactConfig(),
		Stage:    DefaultStageConfig(),
		Image:    DefaultImageConfig(),
		Registry: DefaultRegistryConfig(),
		Release:  DefaultReleaseConfig(),
		Secrets:  DefaultSecretsConfig(),
		Log:      LogConfig{Level: "info"},
	}
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return defaults()
}
