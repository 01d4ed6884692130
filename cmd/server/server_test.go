package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/app"
	"kicks-forecast-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// テスト環境の設定
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestApplicationSetupWithoutModel(t *testing.T) {
	// モデルが無くてもサーバーは起動し、ヘルスチェックは503を返す
	cfg, err := config.LoadConfigFile("")
	require.NoError(t, err)
	cfg.ModelDir = t.TempDir()
	cfg.PredictionBackend = "local"
	cfg.APIKey = ""

	r, err := app.New(cfg, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, r)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"models_available":false`)
}

func TestApplicationSetupUnknownBackend(t *testing.T) {
	cfg, err := config.LoadConfigFile("")
	require.NoError(t, err)
	cfg.PredictionBackend = "gpu"

	_, err = app.New(cfg, logger.Nop())
	assert.Error(t, err)
}
