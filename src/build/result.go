package build

import "time"

// StepResult captures the outcome of one image build.
type StepResult struct {
	Name     string
	Status   string       // "success", "failed"
	Images   []string     // tags applied to the built image
	Layers   []LayerEvent // parsed from --progress=plain output
	Duration time.Duration
	Error    error
}

// PushResult captures the outcome of one tag push.
type PushResult struct {
	Ref      string
	Digest   string
	Attempts int
	Duration time.Duration
}
