package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gelecek/folder-uploader/internal/observability"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	metrics, handler, err := observability.NewMetrics(ctx)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	require.NotNil(t, handler)
	t.Cleanup(func() {
		_ = metrics.Shutdown(t.Context())
	})

	metrics.RecordJobStarted(ctx)
	metrics.RecordJobStarted(ctx)
	metrics.RecordOutputLines(ctx, 3)
	metrics.RecordJobFinished(ctx, "succeeded", true, 2*time.Second)
	metrics.RecordJobFinished(ctx, "failed", false, 3*time.Second)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "uploader_jobs_total")
	require.Contains(t, string(body), "uploader_output_lines_total")
	require.Contains(t, string(body), "uploader_job_failures_total")
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()
	var metrics *observability.Metrics
	ctx := t.Context()
	// must not panic
	metrics.RecordJobStarted(ctx)
	metrics.RecordOutputLines(ctx, 1)
	metrics.RecordJobFinished(ctx, "stopped", false, time.Second)
	require.NoError(t, metrics.Shutdown(ctx))
}
