package build

import (
	"strings"

	"github.com/sofmeright/artifreight/src/artifact"
)

// ResolveTags expands tag templates against an artifact version and returns
// full references in repo, skipping duplicates of primary.
//
// Supported templates:
//
//	{version}          → "1.21.20.03"
//	{major}            → "1"
//	{minor}            → "21"
//	{patch}            → "20"
//	{build}            → "3"
//	{major}.{minor}    → "1.21"
//	{name}             → "bedrock-server"
//	latest             → "latest"   (literal passthrough)
func ResolveTags(templates []string, repo, primary string, spec artifact.Spec) []string {
	seen := map[string]bool{primary: true}
	out := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		tag := ExpandTemplate(tmpl, spec)
		if tag == "" {
			continue
		}
		ref := repo + ":" + sanitizeTag(tag)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// ExpandTemplate substitutes version placeholders in s.
func ExpandTemplate(s string, spec artifact.Spec) string {
	major, minor, patch, build := artifact.Parts(spec.Version)
	r := strings.NewReplacer(
		"{version}", spec.Version,
		"{major}", major,
		"{minor}", minor,
		"{patch}", patch,
		"{build}", build,
		"{name}", spec.Name,
	)
	return r.Replace(s)
}

// SplitRef splits "host/path/repo:tag" into repository and tag. A digest
// suffix is dropped. The tag is empty when the reference has none.
func SplitRef(ref string) (repo, tag string) {
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		return ref[:colon], ref[colon+1:]
	}
	return ref, ""
}

// RegistryHost returns the registry host of an image reference, or
// "docker.io" when the first path component is not a hostname.
func RegistryHost(ref string) string {
	repo, _ := SplitRef(ref)
	first, _, found := strings.Cut(repo, "/")
	if !found {
		return "docker.io"
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return "docker.io"
}

// sanitizeTag replaces characters not allowed in Docker tags.
func sanitizeTag(s string) string {
	r := strings.NewReplacer(
		"/", "-",
		" ", "-",
		"+", "-",
	)
	return r.Replace(s)
}
