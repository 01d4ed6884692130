package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/models"
	"kicks-forecast-api/pkg/services"
	"kicks-forecast-api/pkg/services/servicetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const predictBody = `{"retailer":"Foot Locker","region":"West","product":"Men's Street Footwear","sales_method":"In-store","price_per_unit":50,"month":6,"quarter":2}`

// trainedModelDir は合成データで学習したモデルを一時ディレクトリに保存する
func trainedModelDir(t *testing.T) string {
	t.Helper()
	cfg := services.TrainingConfig{Seed: 42, TestSize: 0.2, NumTrees: 10, MaxDepth: 10}
	res, err := services.NewTrainer(cfg, nil).Train(servicetest.Records(300, 1))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, services.SaveArtifact(dir, res.Artifact, res.Metadata))
	return dir
}

func localRouter(t *testing.T, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, err := New(&config.Config{PredictionBackend: services.BackendLocal, ModelDir: trainedModelDir(t), APIKey: apiKey}, nil)
	require.NoError(t, err)
	return r
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLocalRoutes(t *testing.T) {
	r := localRouter(t, "")

	w := serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/api/check-models", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.ModelStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Available)

	w = serve(r, http.MethodGet, "/api/metadata", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var meta models.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, servicetest.Retailers, meta.Retailers)

	w = serve(r, http.MethodPost, "/api/predict", predictBody, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.PredictionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.InDelta(t, res.PredictedUnits*50, res.PredictedSales, 1e-9)

	// ダッシュボード互換ルートも同じ結果
	w2 := serve(r, http.MethodPost, "/ml-prediction/api/predict-demand", predictBody, nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.JSONEq(t, w.Body.String(), w2.Body.String())

	w = serve(r, http.MethodGet, "/ml-prediction/api/check-models", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	r := localRouter(t, "s3cret")

	w := serve(r, http.MethodPost, "/api/predict", predictBody, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/api/predict", predictBody, map[string]string{"X-API-KEY": "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)

	// ヘルスチェックとバナーはキー不要
	w = serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := localRouter(t, "")
	serve(r, http.MethodPost, "/api/predict", predictBody, nil)

	w := serve(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "kicks_model_loaded 1")
	assert.Contains(t, body, `kicks_predictions_total{backend="local",outcome="ok"} 1`)
	assert.Contains(t, body, "kicks_http_requests_total")
}

func TestMonitoringDashboard(t *testing.T) {
	r := localRouter(t, "")
	serve(r, http.MethodPost, "/api/predict", predictBody, nil)
	serve(r, http.MethodPost, "/api/predict", `{"retailer":"Nowhere","region":"West","product":"Men's Street Footwear","sales_method":"In-store","price_per_unit":50,"month":6,"quarter":2}`, nil)

	w := serve(r, http.MethodGet, "/api/monitoring/logs?period=1h", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data services.DashboardData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, 2, data.Endpoints["/api/predict"])
	assert.Equal(t, 1, data.ErrorKinds["unknown_category"])
}

func TestRemoteMirrorMatchesLocal(t *testing.T) {
	local := localRouter(t, "")
	upstream := httptest.NewServer(local)
	defer upstream.Close()

	remote, err := New(&config.Config{
		PredictionBackend: services.BackendRemote,
		RemoteAPIURL:      upstream.URL,
		RemoteTimeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)

	want := serve(local, http.MethodPost, "/api/predict", predictBody, nil)
	got := serve(remote, http.MethodPost, "/api/predict", predictBody, nil)
	require.Equal(t, http.StatusOK, got.Code, got.Body.String())
	assert.JSONEq(t, want.Body.String(), got.Body.String())

	w := serve(remote, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(remote, http.MethodGet, "/api/metadata", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// リモート側のエラー種別とメッセージがそのまま伝わる
	bad := `{"retailer":"Nowhere","region":"West","product":"Men's Street Footwear","sales_method":"In-store","price_per_unit":50,"month":6,"quarter":2}`
	want = serve(local, http.MethodPost, "/api/predict", bad, nil)
	got = serve(remote, http.MethodPost, "/api/predict", bad, nil)
	assert.Equal(t, http.StatusBadRequest, got.Code)
	assert.Equal(t, "unknown_category", got.Header().Get(services.ErrorKindHeader))
	assert.JSONEq(t, want.Body.String(), got.Body.String())
}

func TestRemoteMirrorWithAPIKey(t *testing.T) {
	upstream := httptest.NewServer(localRouter(t, "secret"))
	defer upstream.Close()

	remote, err := New(&config.Config{
		PredictionBackend: services.BackendRemote,
		RemoteAPIURL:      upstream.URL,
		RemoteAPIKey:      "secret",
		RemoteTimeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)

	w := serve(remote, http.MethodPost, "/api/predict", predictBody, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// キーが違うミラーは利用不可として扱う
	wrong, err := New(&config.Config{
		PredictionBackend: services.BackendRemote,
		RemoteAPIURL:      upstream.URL,
		RemoteAPIKey:      "stale",
		RemoteTimeout:     5 * time.Second,
	}, nil)
	require.NoError(t, err)

	w = serve(wrong, http.MethodPost, "/api/predict", predictBody, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "model_unavailable", w.Header().Get(services.ErrorKindHeader))

	w = serve(wrong, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRemoteMirrorUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	r, err := New(&config.Config{PredictionBackend: services.BackendRemote, RemoteAPIURL: url, RemoteTimeout: time.Second}, nil)
	require.NoError(t, err)

	w := serve(r, http.MethodPost, "/api/predict", predictBody, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "model_unavailable", w.Header().Get(services.ErrorKindHeader))

	w = serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
