package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/artifreight/src/config"
	"github.com/sofmeright/artifreight/src/transport"
)

const sum256 = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func newResolver(t *testing.T, mutate func(*config.ArtifactConfig)) *Resolver {
	t.Helper()

	cfg := config.Defaults().Artifact
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewResolver(cfg)
	require.NoError(t, err)
	return r
}

func TestResolveExplicitVersion(t *testing.T) {
	r := newResolver(t, nil)

	spec, err := r.Resolve("1.21.20.03", "")
	require.NoError(t, err)
	require.Equal(t, "bedrock-server", spec.Name)
	require.Equal(t, "1.21.20.03", spec.Version)
	require.Equal(t, "https://www.minecraft.net/bedrockdedicatedserver/bin-linux/bedrock-server-1.21.20.03.zip", spec.DownloadURL)
	require.Empty(t, spec.ExpectedChecksum)
}

func TestResolveFallsBackToLatestKnown(t *testing.T) {
	r := newResolver(t, func(c *config.ArtifactConfig) {
		c.LatestKnown = "1.21.30.01"
		c.Checksums = map[string]string{"1.21.30.01": sum256}
	})

	spec, err := r.Resolve("", "")
	require.NoError(t, err)
	require.Equal(t, "1.21.30.01", spec.Version)
	require.Equal(t, "sha256:"+sum256, spec.ExpectedChecksum)
}

func TestResolveChecksumFlagOverridesPin(t *testing.T) {
	other := "SHA256:" + "0000000000000000000000000000000000000000000000000000000000000000"
	r := newResolver(t, func(c *config.ArtifactConfig) {
		c.Checksums = map[string]string{"1.21.30.01": sum256}
	})

	spec, err := r.Resolve("1.21.30.01", other)
	require.NoError(t, err)
	require.Equal(t, "sha256:0000000000000000000000000000000000000000000000000000000000000000", spec.ExpectedChecksum)
}

func TestResolveRejectsMalformedVersion(t *testing.T) {
	r := newResolver(t, nil)

	for _, v := range []string{"not-a-version", "1.2", "1.2.3.4.5", "1.2.3-beta"} {
		_, err := r.Resolve(v, "")
		var uv *UnresolvedVersionError
		require.True(t, errors.As(err, &uv), v)
		require.Equal(t, v, uv.Version)
	}
}

func TestResolveWithoutAnyVersion(t *testing.T) {
	r := newResolver(t, nil)

	_, err := r.Resolve("  ", "")
	var uv *UnresolvedVersionError
	require.ErrorAs(t, err, &uv)
	require.Empty(t, uv.Version)
}

func TestResolveRejectsBadChecksum(t *testing.T) {
	r := newResolver(t, nil)

	_, err := r.Resolve("1.21.20.03", "md5:abc")
	var uv *UnresolvedVersionError
	require.ErrorAs(t, err, &uv)
}

func TestResolveConstraint(t *testing.T) {
	r := newResolver(t, func(c *config.ArtifactConfig) {
		c.Constraint = ">= 1.21, < 1.22"
	})

	_, err := r.Resolve("1.21.20.03", "")
	require.NoError(t, err)

	_, err = r.Resolve("1.20.81.01", "")
	var uv *UnresolvedVersionError
	require.ErrorAs(t, err, &uv)
	require.Contains(t, uv.Reason, "outside allowed range")
}

func TestResolveNameInTemplate(t *testing.T) {
	r := newResolver(t, func(c *config.ArtifactConfig) {
		c.Name = "tool"
		c.URLTemplate = "https://dl.example.test/{name}/{version}/{name}.tar.gz"
	})

	spec, err := r.Resolve("2.0.1", "")
	require.NoError(t, err)
	require.Equal(t, "https://dl.example.test/tool/2.0.1/tool.tar.gz", spec.DownloadURL)
}

func TestParts(t *testing.T) {
	major, minor, patch, build := Parts("1.21.20.03")
	require.Equal(t, []string{"1", "21", "20", "3"}, []string{major, minor, patch, build})

	major, minor, patch, build = Parts("2.0.1")
	require.Equal(t, []string{"2", "0", "1", ""}, []string{major, minor, patch, build})
}

func TestNormalizeChecksum(t *testing.T) {
	require.Equal(t, "sha256:"+sum256, NormalizeChecksum(" "+sum256+" "))
	require.Equal(t, "", NormalizeChecksum(""))
}

func TestDiscover(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "artifreight-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"links":[
			{"downloadType":"serverBedrockWindows","downloadUrl":"https://x.test/win/bedrock-server-1.21.20.03.zip"},
			{"downloadType":"serverBedrockLinux","downloadUrl":"https://x.test/linux/bedrock-server-1.21.20.03.zip"}
		]}}`))
	}))
	defer srv.Close()

	c := transport.New(srv.Client(), map[string]string{"User-Agent": "artifreight-test"})
	d, err := Discover(context.Background(), c, srv.URL, "serverBedrockLinux")
	require.NoError(t, err)
	require.Equal(t, "1.21.20.03", d.Version)
	require.Equal(t, "https://x.test/linux/bedrock-server-1.21.20.03.zip", d.DownloadURL)
	require.EqualValues(t, 1, hits.Load())

	_, err = Discover(context.Background(), c, srv.URL, "serverJava")
	require.Error(t, err)
}
