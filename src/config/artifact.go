package config

// ArtifactConfig describes the upstream artifact and how a version maps to a
// download URL.
type ArtifactConfig struct {
	// Name identifies the artifact; it prefixes cache keys and records.
	Name string `yaml:"name" toml:"name"`

	// LatestKnown is the version used when none is requested. It is pinned
	// by the operator (see `artifreight discover --write`), never looked up.
	LatestKnown string `yaml:"latest_known" toml:"latest_known"`

	// URLTemplate builds the download URL. Placeholders: {name}, {version}.
	URLTemplate string `yaml:"url_template" toml:"url_template"`

	// VersionPattern is the regex a version string must match.
	VersionPattern string `yaml:"version_pattern" toml:"version_pattern"`

	// Constraint optionally gates versions with a semver range evaluated
	// against the first three numeric segments (e.g. ">= 1.20").
	Constraint string `yaml:"constraint,omitempty" toml:"constraint,omitempty"`

	// Checksums pins an expected digest per version:
	//
	//   checksums:
	//     1.21.20.03: sha256:9f2c...
	//
	// A --checksum flag wins over a pinned value.
	Checksums map[string]string `yaml:"checksums,omitempty" toml:"checksums,omitempty"`

	// Headers are sent with every download request.
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`

	// Discovery configures the opt-in `discover` command.
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
}

// DiscoveryConfig points at an upstream "download links" API.
type DiscoveryConfig struct {
	URL          string `yaml:"url" toml:"url"`
	DownloadType string `yaml:"download_type" toml:"download_type"`
}

// DefaultArtifactConfig returns the Bedrock dedicated server defaults.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Name:           "bedrock-server",
		URLTemplate:    "https://www.minecraft.net/bedrockdedicatedserver/bin-linux/bedrock-server-{version}.zip",
		VersionPattern: `^\d+(\.\d+){2,3}$`,
		Checksums:      map[string]string{},
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.5615.50 Safari/537.36",
			"Accept-Language": "en-US,en;q=0.9",
		},
		Discovery: DiscoveryConfig{
			URL:          "https://net-secondary.web.minecraft-services.net/api/v1.0/download/links",
			DownloadType: "serverBedrockLinux",
		},
	}
}
