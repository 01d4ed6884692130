package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"PORT", "ENVIRONMENT", "API_KEY", "MODEL_DIR", "PREDICTION_BACKEND",
	"ML_API_URL", "ML_API_KEY", "ML_API_TIMEOUT", "TRAINING_DATA_FILE", "TRAINING_SEED",
	"TRAINING_NUM_TREES", "CONFIG_FILE", "ADMIN_USERNAME", "ADMIN_PASSWORD",
}

func TestLoadConfig(t *testing.T) {
	// テスト用の環境変数を設定
	testCases := map[string]string{
		"PORT":               "9090",
		"ENVIRONMENT":        "test",
		"MODEL_DIR":          "/tmp/models",
		"PREDICTION_BACKEND": "remote",
		"ML_API_URL":         "http://ml.internal:5000",
		"ML_API_TIMEOUT":     "3s",
		"TRAINING_SEED":      "7",
	}
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
	for key, value := range testCases {
		t.Setenv(key, value)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "/tmp/models", cfg.ModelDir)
	assert.Equal(t, "remote", cfg.PredictionBackend)
	assert.Equal(t, "http://ml.internal:5000", cfg.RemoteAPIURL)
	assert.Equal(t, 3*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, int64(7), cfg.Training.Seed)
}

func TestLoadConfigDefaults(t *testing.T) {
	// 環境変数をクリア
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "local", cfg.PredictionBackend)
	assert.Equal(t, 15*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, 100, cfg.Training.NumTrees)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFile(t *testing.T) {
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "7000"
environment: production
model_dir: ./artifacts
training:
  seed: 1234
  num_trees: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "./artifacts", cfg.ModelDir)
	assert.Equal(t, int64(1234), cfg.Training.Seed)
	assert.Equal(t, 25, cfg.Training.NumTrees)
	// ファイルに無い項目はデフォルトのまま
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.True(t, cfg.IsProduction())

	// 環境変数はファイルより優先される
	t.Setenv("PORT", "7001")
	cfg, err = LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port)
}

func TestLoadConfigFileValidation(t *testing.T) {
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}

	t.Setenv("PREDICTION_BACKEND", "remote")
	_, err := LoadConfigFile("")
	assert.Error(t, err, "remote backend without URL must be rejected")

	t.Setenv("PREDICTION_BACKEND", "carrier-pigeon")
	_, err = LoadConfigFile("")
	assert.Error(t, err)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"out of range test_size", "model_dir: /srv/models\ntraining:\n  test_size: 1.5\n", "test_size"},
		{"broken yaml", "model_dir: [unclosed\n", "parse config"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, fmt.Sprintf("config-%d.yaml", i))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			t.Setenv("CONFIG_FILE", path)

			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
