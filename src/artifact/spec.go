// Package artifact resolves which upstream artifact a pipeline run packages.
// Resolution is pure: it maps a version string to a download URL from
// configuration and never touches the network. Discovery of the newest
// upstream version is a separate, explicit operation (see Discover).
package artifact

import (
	"fmt"
	"strings"
)

// Spec identifies one upstream artifact. Version and DownloadURL are derived
// together by the Resolver and are not changed for the rest of the run.
type Spec struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	DownloadURL string `json:"download_url" yaml:"download_url"`

	// ExpectedChecksum is "<algo>:<hex>" or empty when nothing is pinned.
	ExpectedChecksum string `json:"expected_checksum,omitempty" yaml:"expected_checksum,omitempty"`
}

// String returns "name@version".
func (s Spec) String() string {
	return s.Name + "@" + s.Version
}

// UnresolvedVersionError reports a missing or malformed version. It is a
// user error and is never retried.
type UnresolvedVersionError struct {
	Version string
	Reason  string
}

func (e *UnresolvedVersionError) Error() string {
	if e.Version == "" {
		return "unresolved version: " + e.Reason
	}
	return fmt.Sprintf("unresolved version %q: %s", e.Version, e.Reason)
}

// NormalizeChecksum lower-cases a digest and adds the algorithm prefix
// implied by its length when none is given.
func NormalizeChecksum(sum string) string {
	sum = strings.ToLower(strings.TrimSpace(sum))
	if sum == "" || strings.Contains(sum, ":") {
		return sum
	}
	switch len(sum) {
	case 128:
		return "sha512:" + sum
	default:
		return "sha256:" + sum
	}
}
