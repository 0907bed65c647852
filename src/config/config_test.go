package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAMLMergesDefaults(t *testing.T) {
	path := writeConfig(t, "cfg.yml", `
artifact:
  latest_known: "1.21.20.03"
  checksums:
    "1.21.20.03": "sha256:0000000000000000000000000000000000000000000000000000000000000000"
stage:
  backoff: 5s
registry:
  image: example/bedrockserver
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, cfg.Path)
	require.Equal(t, "1.21.20.03", cfg.Artifact.LatestKnown)
	require.Equal(t, "bedrock-server", cfg.Artifact.Name)
	require.Equal(t, 5*time.Second, cfg.Stage.Backoff.Std())
	require.Equal(t, 3, cfg.Stage.Attempts)
	require.Equal(t, []string{"bedrock_server"}, cfg.Stage.Entrypoints)
	require.Equal(t, "example/bedrockserver", cfg.Registry.Image)

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "cfg.toml", `
[artifact]
name = "bedrock-server"
latest_known = "1.21.30.01"

[stage]
timeout = "90s"
entrypoints = ["bedrock_server", "bin/bedrock_server"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "1.21.30.01", cfg.Artifact.LatestKnown)
	require.Equal(t, 90*time.Second, cfg.Stage.Timeout.Std())
	require.Len(t, cfg.Stage.Entrypoints, 2)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvImage, "other/image")
	t.Setenv(EnvLatestVersion, "1.21.40.02")

	path := writeConfig(t, "cfg.yml", "registry:\n  image: example/bedrockserver\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "other/image", cfg.Registry.Image)
	require.Equal(t, "1.21.40.02", cfg.Artifact.LatestKnown)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Artifact.URLTemplate = "https://example.invalid/server.zip"
	cfg.Artifact.Constraint = ">>> nope"
	cfg.Artifact.Checksums = map[string]string{"1.0.0": "md5:abc"}
	cfg.Stage.Attempts = 0
	cfg.Registry.Credentials = CredentialsConfig{Provider: "file"}

	_, err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "artifact.url_template")
	require.Contains(t, msg, "artifact.constraint")
	require.Contains(t, msg, "artifact.checksums[1.0.0]")
	require.Contains(t, msg, "stage.attempts")
	require.Contains(t, msg, "registry.credentials")
}

func TestValidateWarnsOnUnpinnedLatest(t *testing.T) {
	cfg := Defaults()
	cfg.Artifact.LatestKnown = "1.21.20.03"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestValidChecksum(t *testing.T) {
	sha256Hex := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	require.True(t, ValidChecksum(sha256Hex))
	require.True(t, ValidChecksum("sha256:"+sha256Hex))
	require.True(t, ValidChecksum("SHA256:"+sha256Hex))
	require.False(t, ValidChecksum("sha512:"+sha256Hex))
	require.False(t, ValidChecksum("deadbeef"))
	require.False(t, ValidChecksum("sha256:not-hex"))
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " y ", "on"} {
		require.True(t, Truthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		require.False(t, Truthy(v), v)
	}
}

func TestSetLatestKnownYAMLKeepsOtherKeys(t *testing.T) {
	path := writeConfig(t, "cfg.yml", `# pinned by hand
artifact:
  name: bedrock-server
  latest_known: "1.20.0.1"
registry:
  image: example/bedrockserver
`)

	require.NoError(t, SetLatestKnown(path, "1.21.20.03"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "1.21.20.03", cfg.Artifact.LatestKnown)
	require.Equal(t, "example/bedrockserver", cfg.Registry.Image)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# pinned by hand")
}

func TestSetLatestKnownTOML(t *testing.T) {
	path := writeConfig(t, "cfg.toml", "[registry]\nimage = \"example/bedrockserver\"\n")

	require.NoError(t, SetLatestKnown(path, "1.21.20.03"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "1.21.20.03", cfg.Artifact.LatestKnown)
	require.Equal(t, "example/bedrockserver", cfg.Registry.Image)
}
