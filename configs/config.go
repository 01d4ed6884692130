package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port        string `yaml:"port" default:"8080"`
	Environment string `yaml:"environment" default:"development"`
	APIKey      string `yaml:"api_key"`

	// 管理者API（メンテナンスモード切替）の認証情報
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`

	// ModelDir は学習済みモデル（units_predictor.json / metadata.json）の配置先
	ModelDir string `yaml:"model_dir" default:"predictions/trained_models"`

	// PredictionBackend は "local"（プロセス内推論）または "remote"（ML APIミラー）
	PredictionBackend string        `yaml:"prediction_backend" default:"local"`
	RemoteAPIURL      string        `yaml:"remote_api_url"`
	RemoteAPIKey      string        `yaml:"remote_api_key"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout" default:"15s"`

	Training TrainingConfig `yaml:"training"`
}

// TrainingConfig 学習ジョブの設定
type TrainingConfig struct {
	DataFile string  `yaml:"data_file" default:"data/adidas_sales_cleaned.csv"`
	Seed     int64   `yaml:"seed" default:"42"`
	TestSize float64 `yaml:"test_size" default:"0.2"`
	NumTrees int     `yaml:"num_trees" default:"100"`
	MaxDepth int     `yaml:"max_depth" default:"0"`
}

// LoadConfig loads configuration from defaults, an optional YAML file (CONFIG_FILE)
// and environment variables, in that order.
// A broken or invalid file is an error; callers must not fall back to defaults.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("CONFIG_FILE"))
}

// LoadConfigFile is LoadConfig with an explicit YAML path. An empty path skips the file.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.PredictionBackend {
	case "local":
	case "remote":
		if c.RemoteAPIURL == "" {
			return fmt.Errorf("remote_api_url is required when prediction_backend is remote")
		}
	default:
		return fmt.Errorf("unknown prediction_backend: %q", c.PredictionBackend)
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be in (0, 1), got %v", c.Training.TestSize)
	}
	if c.Training.NumTrees <= 0 {
		return fmt.Errorf("training.num_trees must be positive, got %d", c.Training.NumTrees)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.APIKey = getEnv("API_KEY", cfg.APIKey)
	cfg.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.ModelDir = getEnv("MODEL_DIR", cfg.ModelDir)
	cfg.PredictionBackend = strings.ToLower(getEnv("PREDICTION_BACKEND", cfg.PredictionBackend))
	cfg.RemoteAPIURL = getEnv("ML_API_URL", cfg.RemoteAPIURL)
	cfg.RemoteAPIKey = getEnv("ML_API_KEY", cfg.RemoteAPIKey)
	if d, err := time.ParseDuration(getEnv("ML_API_TIMEOUT", "")); err == nil {
		cfg.RemoteTimeout = d
	}

	cfg.Training.DataFile = getEnv("TRAINING_DATA_FILE", cfg.Training.DataFile)
	if v, err := strconv.ParseInt(getEnv("TRAINING_SEED", ""), 10, 64); err == nil {
		cfg.Training.Seed = v
	}
	if v, err := strconv.Atoi(getEnv("TRAINING_NUM_TREES", "")); err == nil {
		cfg.Training.NumTrees = v
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
