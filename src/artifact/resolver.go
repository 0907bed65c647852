package artifact

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	goversion "github.com/hashicorp/go-version"

	"github.com/sofmeright/artifreight/src/config"
)

// Resolver maps a requested version to a Spec using configuration only.
type Resolver struct {
	name        string
	latestKnown string
	urlTemplate string
	pattern     *regexp.Regexp
	constraint  *semver.Constraints
	checksums   map[string]string
}

// NewResolver builds a Resolver from the artifact section of the config.
func NewResolver(cfg config.ArtifactConfig) (*Resolver, error) {
	re, err := regexp.Compile(cfg.VersionPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling version pattern: %w", err)
	}

	r := &Resolver{
		name:        cfg.Name,
		latestKnown: strings.TrimSpace(cfg.LatestKnown),
		urlTemplate: cfg.URLTemplate,
		pattern:     re,
		checksums:   cfg.Checksums,
	}

	if cfg.Constraint != "" {
		c, err := semver.NewConstraint(cfg.Constraint)
		if err != nil {
			return nil, fmt.Errorf("parsing version constraint: %w", err)
		}
		r.constraint = c
	}

	return r, nil
}

// Resolve returns the Spec for requested, or for the configured latest known
// version when requested is empty. checksum, when non-empty, overrides any
// digest pinned in configuration.
func (r *Resolver) Resolve(requested, checksum string) (Spec, error) {
	v := strings.TrimSpace(requested)
	if v == "" {
		v = r.latestKnown
	}
	if v == "" {
		return Spec{}, &UnresolvedVersionError{Reason: "no version requested and artifact.latest_known is not set"}
	}

	if err := r.Validate(v); err != nil {
		return Spec{}, err
	}

	expected := checksum
	if expected == "" {
		expected = r.checksums[v]
	}
	if expected != "" && !config.ValidChecksum(expected) {
		return Spec{}, &UnresolvedVersionError{Version: v, Reason: fmt.Sprintf("checksum %q is not a sha256/sha512 hex digest", expected)}
	}

	return Spec{
		Name:             r.name,
		Version:          v,
		DownloadURL:      r.URL(v),
		ExpectedChecksum: NormalizeChecksum(expected),
	}, nil
}

// Validate checks v against the version pattern and optional constraint.
func (r *Resolver) Validate(v string) error {
	if !r.pattern.MatchString(v) {
		return &UnresolvedVersionError{Version: v, Reason: fmt.Sprintf("does not match pattern %s", r.pattern)}
	}

	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return &UnresolvedVersionError{Version: v, Reason: err.Error()}
	}

	if r.constraint != nil {
		sv, err := semverOf(parsed)
		if err != nil {
			return &UnresolvedVersionError{Version: v, Reason: err.Error()}
		}
		if !r.constraint.Check(sv) {
			return &UnresolvedVersionError{Version: v, Reason: fmt.Sprintf("outside allowed range %s", r.constraint)}
		}
	}
	return nil
}

// URL expands the download template for v.
func (r *Resolver) URL(v string) string {
	u := strings.ReplaceAll(r.urlTemplate, "{version}", url.PathEscape(v))
	return strings.ReplaceAll(u, "{name}", url.PathEscape(r.name))
}

// semverOf projects the first three segments of an N-part version onto a
// semver value so range constraints can be evaluated.
func semverOf(v *goversion.Version) (*semver.Version, error) {
	seg := v.Segments()
	for len(seg) < 3 {
		seg = append(seg, 0)
	}
	return semver.NewVersion(fmt.Sprintf("%d.%d.%d", seg[0], seg[1], seg[2]))
}

// Parts splits a version into major, minor, patch, and build segments for
// tag templates. Missing segments are empty.
func Parts(v string) (major, minor, patch, build string) {
	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return "", "", "", ""
	}
	seg := parsed.Segments()
	out := make([]string, 4)
	for i := 0; i < len(seg) && i < 4; i++ {
		out[i] = fmt.Sprintf("%d", seg[i])
	}
	return out[0], out[1], out[2], out[3]
}
