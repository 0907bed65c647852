package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// IsCI reports whether the process runs under a CI system.
func IsCI() bool {
	return os.Getenv("CI") == "true"
}

func IsGitLabCI() bool {
	return os.Getenv("GITLAB_CI") == "true"
}

func IsGitHubActions() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// UseColor reports whether colored output should be used.
// Respects NO_COLOR, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// SectionStart opens a collapsible log section on GitLab or GitHub.
func SectionStart(w io.Writer, id, name string, collapsed bool) {
	switch {
	case IsGitLabCI():
		opt := ""
		if collapsed {
			opt = "[collapsed=true]"
		}
		fmt.Fprintf(w, "\033[0Ksection_start:%d:%s%s\r\033[0K%s\n", time.Now().Unix(), id, opt, name)
	case IsGitHubActions():
		fmt.Fprintf(w, "::group::%s\n", name)
	}
}

// SectionEnd closes a section opened by SectionStart.
func SectionEnd(w io.Writer, id string) {
	switch {
	case IsGitLabCI():
		fmt.Fprintf(w, "\033[0Ksection_end:%d:%s\r\033[0K\n", time.Now().Unix(), id)
	case IsGitHubActions():
		fmt.Fprintln(w, "::endgroup::")
	}
}

// CIContext returns pipeline identity pairs for ContextBlock.
func CIContext() []KV {
	var kv []KV
	add := func(key string, envs ...string) {
		for _, e := range envs {
			if v := strings.TrimSpace(os.Getenv(e)); v != "" {
				if key == "sha" && len(v) > 8 {
					v = v[:8]
				}
				kv = append(kv, KV{Key: key, Value: v})
				return
			}
		}
	}
	add("pipeline", "CI_PIPELINE_ID", "GITHUB_RUN_ID")
	add("sha", "CI_COMMIT_SHORT_SHA", "CI_COMMIT_SHA", "GITHUB_SHA")
	add("ref", "CI_COMMIT_REF_NAME", "GITHUB_REF_NAME")
	add("runner", "CI_RUNNER_DESCRIPTION", "RUNNER_NAME")
	return kv
}
