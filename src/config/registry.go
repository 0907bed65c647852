package config

// RegistryConfig defines where images are pushed and how to authenticate.
type RegistryConfig struct {
	// Image is the repository used when --tag is omitted; the tag becomes
	// the artifact version (e.g. "jackclark1123/bedrockserver").
	Image string `yaml:"image" toml:"image"`

	// Server overrides the login host. Default: derived from the image
	// reference (docker.io when the reference has no registry host).
	Server string `yaml:"server,omitempty" toml:"server,omitempty"`

	// Credentials configures the registry credential provider.
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`

	// PushAttempts bounds push tries for transient network failures.
	PushAttempts int `yaml:"push_attempts" toml:"push_attempts"`
}

// CredentialsConfig selects a credential provider.
//
//	provider: env   → <PREFIX>_USER plus <PREFIX>_PASS, <PREFIX>_TOKEN, or <PREFIX>_PASS_FILE
//	provider: file  → username + password_file
//	provider: age   → username + age-encrypted password_file + identity_file
//	provider: none  → no login
type CredentialsConfig struct {
	Provider     string `yaml:"provider" toml:"provider"`
	Prefix       string `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	Username     string `yaml:"username,omitempty" toml:"username,omitempty"`
	PasswordFile string `yaml:"password_file,omitempty" toml:"password_file,omitempty"`
	IdentityFile string `yaml:"identity_file,omitempty" toml:"identity_file,omitempty"`
}

// DefaultRegistryConfig returns sensible defaults for registry pushes.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Credentials: CredentialsConfig{
			Provider: "env",
			Prefix:   "DOCKER",
		},
		PushAttempts: 3,
	}
}
