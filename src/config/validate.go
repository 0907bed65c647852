package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// validProviders lists the credential provider names.
var validProviders = map[string]bool{
	"env":  true,
	"file": true,
	"age":  true,
	"none": true,
}

// checksumRe accepts "sha256:<hex>", "sha512:<hex>", or bare hex.
var checksumRe = regexp.MustCompile(`(?i)^(?:(sha256|sha512):)?([0-9a-f]+)$`)

// Validate checks structural invariants of a loaded Config.
// Returns warnings (soft issues) and a hard error if the config is invalid.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	// ── Artifact ──────────────────────────────────────────────────────────

	a := cfg.Artifact
	if strings.TrimSpace(a.Name) == "" {
		errs = append(errs, "artifact.name: is required")
	}
	if !strings.Contains(a.URLTemplate, "{version}") {
		errs = append(errs, "artifact.url_template: must contain {version}")
	}
	if _, reErr := regexp.Compile(a.VersionPattern); reErr != nil || a.VersionPattern == "" {
		errs = append(errs, fmt.Sprintf("artifact.version_pattern: invalid regex %q", a.VersionPattern))
	}
	if a.Constraint != "" {
		if _, cErr := semver.NewConstraint(a.Constraint); cErr != nil {
			errs = append(errs, fmt.Sprintf("artifact.constraint: %v", cErr))
		}
	}
	for v, sum := range a.Checksums {
		if !ValidChecksum(sum) {
			errs = append(errs, fmt.Sprintf("artifact.checksums[%s]: %q is not a sha256/sha512 hex digest", v, sum))
		}
	}
	if a.LatestKnown != "" && a.Checksums[a.LatestKnown] == "" {
		warnings = append(warnings, fmt.Sprintf("artifact.checksums: no checksum pinned for latest_known %s; the download will not be verified", a.LatestKnown))
	}

	// ── Stage ─────────────────────────────────────────────────────────────

	s := cfg.Stage
	if s.CacheDir == "" {
		errs = append(errs, "stage.cache_dir: is required")
	}
	if len(s.Entrypoints) == 0 {
		errs = append(errs, "stage.entrypoints: at least one candidate is required")
	}
	if s.Attempts < 1 {
		errs = append(errs, fmt.Sprintf("stage.attempts: must be >= 1, got %d", s.Attempts))
	}
	if s.MaxDownloadBytes < 0 {
		errs = append(errs, "stage.max_download_bytes: must not be negative")
	}

	// ── Image ─────────────────────────────────────────────────────────────

	img := cfg.Image
	if img.Dockerfile == "" {
		if img.Base == "" {
			errs = append(errs, "image.base: is required when image.dockerfile is not set")
		}
		if len(img.Cmd) == 0 {
			errs = append(errs, "image.cmd: is required when image.dockerfile is not set")
		}
	}
	if strings.Contains(img.Platform, ",") {
		errs = append(errs, fmt.Sprintf("image.platform: a single platform is supported, got %q", img.Platform))
	}

	// ── Registry ──────────────────────────────────────────────────────────

	if perr := validateCredentials("registry.credentials", cfg.Registry.Credentials); perr != "" {
		errs = append(errs, perr)
	}
	if cfg.Registry.PushAttempts < 1 {
		errs = append(errs, fmt.Sprintf("registry.push_attempts: must be >= 1, got %d", cfg.Registry.PushAttempts))
	}

	// ── Release ───────────────────────────────────────────────────────────

	if cfg.Release.Records == "" {
		errs = append(errs, "release.records: is required")
	}
	if g := cfg.Release.Git; g.Enabled {
		if g.Message == "" {
			errs = append(errs, "release.git.message: is required when git is enabled")
		}
		if g.Push {
			if perr := validateCredentials("release.git.credentials", g.Credentials); perr != "" {
				errs = append(errs, perr)
			}
		}
	}

	// ── Log ───────────────────────────────────────────────────────────────

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: unknown level %q", cfg.Log.Level))
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

func validateCredentials(path string, c CredentialsConfig) string {
	p := strings.ToLower(c.Provider)
	if !validProviders[p] {
		return fmt.Sprintf("%s.provider: unknown provider %q (valid: env, file, age, none)", path, c.Provider)
	}
	switch p {
	case "env":
		if c.Prefix == "" {
			return fmt.Sprintf("%s.prefix: required for provider env", path)
		}
	case "file":
		if c.Username == "" || c.PasswordFile == "" {
			return fmt.Sprintf("%s: provider file requires username and password_file", path)
		}
	case "age":
		if c.Username == "" || c.PasswordFile == "" || c.IdentityFile == "" {
			return fmt.Sprintf("%s: provider age requires username, password_file, and identity_file", path)
		}
	}
	return ""
}

// ValidChecksum reports whether s is a sha256 or sha512 hex digest with an
// optional algorithm prefix.
func ValidChecksum(s string) bool {
	m := checksumRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	switch strings.ToLower(m[1]) {
	case "sha256":
		return len(m[2]) == 64
	case "sha512":
		return len(m[2]) == 128
	default:
		return len(m[2]) == 64 || len(m[2]) == 128
	}
}
