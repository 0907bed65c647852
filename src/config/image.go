package config

// ImageConfig is the declarative runtime description the image is built from.
type ImageConfig struct {
	// Base is the FROM image reference.
	Base string `yaml:"base" toml:"base"`

	// Packages are installed with the base image's package manager.
	Packages []string `yaml:"packages" toml:"packages"`

	// Workdir is where the staged root is copied.
	Workdir string `yaml:"workdir" toml:"workdir"`

	// Env sets image environment variables (e.g. LD_LIBRARY_PATH).
	Env map[string]string `yaml:"env" toml:"env"`

	// Cmd is the default command, exec form.
	Cmd []string `yaml:"cmd" toml:"cmd"`

	// Expose lists ports with optional protocol ("19132/udp").
	Expose []string `yaml:"expose" toml:"expose"`

	// Dockerfile replaces the rendered description with a hand-written file.
	// VERSION, ARTIFACT_NAME, and BUILD_DATE are injected when it declares them.
	Dockerfile string `yaml:"dockerfile,omitempty" toml:"dockerfile,omitempty"`

	// BuildArgs are passed as --build-arg. Values support tag placeholders.
	BuildArgs map[string]string `yaml:"build_args,omitempty" toml:"build_args,omitempty"`

	// Platform is the single target platform (e.g. linux/amd64).
	Platform string `yaml:"platform,omitempty" toml:"platform,omitempty"`

	// Tags are extra tag templates pushed to the same repository as the
	// primary tag. Placeholders: {name} {version} {major} {minor} {patch} {build}.
	Tags []string `yaml:"tags,omitempty" toml:"tags,omitempty"`
}

// DefaultImageConfig describes the Bedrock server runtime.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Base:     "ubuntu:22.04",
		Packages: []string{"ca-certificates", "curl", "libcurl4"},
		Workdir:  "/bedrock",
		Env: map[string]string{
			"LD_LIBRARY_PATH": ".",
		},
		Cmd:       []string{"./bedrock_server"},
		Expose:    []string{"19132/udp", "19133/udp"},
		BuildArgs: map[string]string{},
	}
}
