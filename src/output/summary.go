package output

import (
	"fmt"
	"io"
	"time"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/build"
	"github.com/sofmeright/artifreight/src/release"
	"github.com/sofmeright/artifreight/src/stage"
)

// Phase is one line of the closing summary.
type Phase struct {
	Name    string
	Status  string // success, failed, skipped
	Detail  string
	Elapsed time.Duration
}

// ResolveSection prints the resolved artifact.
func ResolveSection(w io.Writer, spec artifact.Spec, elapsed time.Duration, color bool) {
	sec := NewSection(w, "Resolve", elapsed, color)
	sec.KV("artifact", spec.Name)
	sec.KV("version", spec.Version)
	sec.KV("url", spec.DownloadURL)
	if spec.ExpectedChecksum != "" {
		sec.KV("checksum", spec.ExpectedChecksum)
	} else {
		sec.KV("checksum", Dimmed("not pinned", color))
	}
	sec.Close()
}

// StageSection prints where the artifact was staged and whether the cache
// was used.
func StageSection(w io.Writer, root *stage.Root, elapsed time.Duration, color bool) {
	sec := NewSection(w, "Stage", elapsed, color)
	sec.KV("root", root.Path)
	if root.CacheHit {
		sec.Status("cache", "reused staged root", "cached")
	} else {
		sec.Status("download", fmt.Sprintf("%d attempt(s)", root.Attempts), "success")
	}
	sec.KV("checksum", root.Marker.Checksum)
	for _, e := range root.Marker.Entrypoints {
		sec.KV("entrypoint", e)
	}
	sec.Close()
}

// BuildSection prints per-layer timing of an image build.
func BuildSection(w io.Writer, res *build.StepResult, color bool) {
	if res == nil {
		return
	}
	sec := NewSection(w, "Build", res.Duration, color)
	for _, l := range res.Layers {
		detail := l.Detail
		if len(detail) > 36 {
			detail = detail[:33] + "..."
		}
		sec.Row("%-6s %-6s %-38s %s", l.Step, l.Instruction, detail, Dimmed(build.FormatLayerTiming(l), color))
	}
	if len(res.Layers) > 0 {
		sec.Separator()
	}
	for _, img := range res.Images {
		sec.Status("image", img, res.Status)
	}
	sec.Close()
}

// PushSection prints each pushed ref and its digest.
func PushSection(w io.Writer, pushes []build.PushResult, elapsed time.Duration, color bool) {
	sec := NewSection(w, "Push", elapsed, color)
	for _, p := range pushes {
		sec.Status("pushed", p.Ref, "success")
		detail := p.Digest
		if p.Attempts > 1 {
			detail = fmt.Sprintf("%s (%d attempts)", detail, p.Attempts)
		}
		sec.Row("%-12s%s", "", Dimmed(detail, color))
	}
	sec.Close()
}

// RecordSection prints the appended release record and the git outcome.
func RecordSection(w io.Writer, path string, rec release.Record, git *release.GitResult, gitErr error, color bool) {
	sec := NewSection(w, "Record", 0, color)
	sec.KV("id", rec.ID)
	sec.KV("log", path)
	sec.KV("pushed_at", rec.PushedAt.Format(time.RFC3339))
	switch {
	case gitErr != nil:
		sec.Status("git", gitErr.Error(), "failed")
	case git == nil:
	case git.Commit == "":
		sec.Status("git", "nothing to commit", "skipped")
	default:
		detail := git.Commit[:min(7, len(git.Commit))]
		if git.Tag != "" {
			detail += " tag " + git.Tag
		}
		if git.Pushed {
			detail += " (pushed)"
		}
		sec.Status("git", detail, "success")
	}
	sec.Close()
}

// Summary prints the closing phase table.
func Summary(w io.Writer, phases []Phase, total time.Duration, color bool) {
	status := "success"
	sec := NewSection(w, "Summary", 0, color)
	for _, p := range phases {
		detail := p.Detail
		if p.Elapsed > 0 {
			detail = fmt.Sprintf("%s %s", detail, Dimmed("("+formatElapsed(p.Elapsed)+")", color))
		}
		SummaryRow(w, p.Name, p.Status, detail, color)
		if p.Status == "failed" {
			status = "failed"
		}
	}
	sec.Separator()
	SummaryTotal(w, total, status, color)
	sec.Close()
}
