package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderIndependentRegistries(t *testing.T) {
	// 同一プロセスで複数作成しても登録が衝突しない
	a := New()
	b := New()

	a.RecordPrediction("local", "ok", 0.01)
	a.RecordPrediction("local", "unknown_category", 0.02)
	b.RecordPrediction("remote", "ok", 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.predictions.WithLabelValues("local", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.predictions.WithLabelValues("local", "unknown_category")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.predictions.WithLabelValues("local", "ok")))
}

func TestModelLoadedGauge(t *testing.T) {
	r := New()
	r.SetModelLoaded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.modelLoaded))
	r.SetModelLoaded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.modelLoaded))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordHTTPRequest("GET", "/health", "200", 0.001)
	r.SetModelLoaded(true)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kicks_http_requests_total")
	assert.Contains(t, string(body), "kicks_model_loaded 1")
}

func TestRegistryGathersHTTPSeries(t *testing.T) {
	r := New()
	r.RecordHTTPRequest("GET", "/health", "200", 0.001)
	r.RecordHTTPRequest("POST", "/api/predict", "400", 0.002)
	r.RecordHTTPRequest("POST", "/api/predict", "400", 0.003)

	n, err := testutil.GatherAndCount(r.Registry(), "kicks_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
