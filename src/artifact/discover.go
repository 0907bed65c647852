package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/sofmeright/artifreight/src/transport"
)

// Discovered is the newest upstream release reported by the links API.
type Discovered struct {
	Version     string
	DownloadURL string
}

type linksResponse struct {
	Result struct {
		Links []struct {
			DownloadType string `json:"downloadType"`
			DownloadURL  string `json:"downloadUrl"`
			Version      string `json:"version"`
		} `json:"links"`
	} `json:"result"`
}

// Discover queries the links API at apiURL and returns the entry whose
// downloadType matches. This is the only network call in the package and is
// never made implicitly by Resolve.
func Discover(ctx context.Context, c *transport.Client, apiURL, downloadType string) (Discovered, error) {
	var body linksResponse
	if err := c.GetJSON(ctx, apiURL, &body); err != nil {
		return Discovered{}, fmt.Errorf("discovering latest version: %w", err)
	}

	for _, l := range body.Result.Links {
		if l.DownloadType != downloadType {
			continue
		}
		d := Discovered{Version: strings.TrimSpace(l.Version), DownloadURL: l.DownloadURL}
		if d.Version == "" {
			d.Version = versionFromURL(l.DownloadURL)
		}
		if d.Version == "" {
			return Discovered{}, fmt.Errorf("discovering latest version: %s entry has no version", downloadType)
		}
		return d, nil
	}
	return Discovered{}, fmt.Errorf("discovering latest version: no %s entry in %d links", downloadType, len(body.Result.Links))
}

// versionFromURL pulls the version out of ".../<name>-<version>.zip".
func versionFromURL(u string) string {
	base := u[strings.LastIndex(u, "/")+1:]
	base = strings.TrimSuffix(base, ".zip")
	i := strings.LastIndex(base, "-")
	if i < 0 {
		return ""
	}
	return base[i+1:]
}
