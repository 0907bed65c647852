package config

// ReleaseConfig holds release record and version-control configuration.
type ReleaseConfig struct {
	// Records is the append-only JSON-lines release log.
	Records string `yaml:"records" toml:"records"`

	// Git configures the optional commit/tag step that follows a push.
	Git GitConfig `yaml:"git" toml:"git"`
}

// GitConfig controls the post-push version-control step.
type GitConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Dir is the repository working tree. Default: ".".
	Dir string `yaml:"dir" toml:"dir"`

	// Paths are staged before committing. Default: the records file.
	Paths []string `yaml:"paths,omitempty" toml:"paths,omitempty"`

	// AddAll stages every change in the worktree (git add -A).
	AddAll bool `yaml:"add_all" toml:"add_all"`

	// Message is the commit message template.
	// Placeholders: {name} {version} {tag} {timestamp}.
	Message string `yaml:"message" toml:"message"`

	// Tag is an annotated tag name template. Empty disables tagging.
	Tag string `yaml:"tag" toml:"tag"`

	// Push pushes the current branch and tags to Remote.
	Push   bool   `yaml:"push" toml:"push"`
	Remote string `yaml:"remote" toml:"remote"`

	// Credentials authenticate the push (HTTP basic auth).
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`

	AuthorName  string `yaml:"author_name" toml:"author_name"`
	AuthorEmail string `yaml:"author_email" toml:"author_email"`
}

// DefaultReleaseConfig returns sensible defaults for release recording.
func DefaultReleaseConfig() ReleaseConfig {
	return ReleaseConfig{
		Records: ".artifreight/releases.jsonl",
		Git: GitConfig{
			Dir:     ".",
			Message: "Auto-build {version} {timestamp}",
			Tag:     "{name}-{version}",
			Remote:  "origin",
			Credentials: CredentialsConfig{
				Provider: "env",
				Prefix:   "GIT",
			},
			AuthorName:  "artifreight",
			AuthorEmail: "artifreight@localhost",
		},
	}
}

// SecretsConfig controls the pre-build secret scan of the staged root.
type SecretsConfig struct {
	Scan bool `yaml:"scan" toml:"scan"`

	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size" toml:"max_file_size"`
}

// DefaultSecretsConfig returns sensible defaults for secret scanning.
func DefaultSecretsConfig() SecretsConfig {
	return SecretsConfig{
		MaxFileSize: 1 << 20,
	}
}
