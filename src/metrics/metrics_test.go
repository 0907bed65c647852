package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Staged(false, 3)
	r.Staged(true, 0)
	r.Published(time.Unix(1700000000, 0))
	r.Failed("stage")
	r.Failed("stage")
	r.Observe("build", 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.downloads))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.attempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishes))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.failures.WithLabelValues("stage")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(r.phases))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Published(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "artifreight.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "artifreight_publish_total 1")
	assert.Contains(t, string(data), "artifreight_last_success_timestamp_seconds 1.7e+09")
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Staged(false, 1)
	r.Published(time.Now())
	r.Failed("x")
	r.Observe("x", time.Second)
	assert.NoError(t, r.WriteTextfile("/nonexistent/x.prom"))
}
