package build

// BuildStep is a single image build invocation.
type BuildStep struct {
	Name       string
	Dockerfile string // absolute path; may live outside Context
	Context    string // the staged root
	Platform   string // single platform, empty for the daemon default
	BuildArgs  map[string]string
	Tags       []string
	Labels     map[string]string
}
