package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/logger"
	"kicks-forecast-api/pkg/models"
)

// バックエンド種別
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// PredictionBackend はHTTP層から見た推論の提供元（プロセス内 or リモートミラー）
type PredictionBackend interface {
	Name() string
	Predict(ctx context.Context, req models.PredictRequest) (*models.PredictionResult, error)
	Metadata(ctx context.Context) (*models.Metadata, error)
	Metrics(ctx context.Context) (*models.ModelMetrics, error)
	Status(ctx context.Context) models.ModelStatus
}

// LocalBackend serves predictions from an in-process ForecastService.
type LocalBackend struct {
	svc *ForecastService
}

// NewLocalBackend ForecastService をバックエンドとして包む
func NewLocalBackend(svc *ForecastService) *LocalBackend {
	if svc == nil {
		svc = &ForecastService{}
	}
	return &LocalBackend{svc: svc}
}

func (b *LocalBackend) Name() string { return BackendLocal }

func (b *LocalBackend) Predict(ctx context.Context, req models.PredictRequest) (*models.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.svc.Predict(req)
}

func (b *LocalBackend) Metadata(ctx context.Context) (*models.Metadata, error) {
	return b.svc.Metadata()
}

func (b *LocalBackend) Metrics(ctx context.Context) (*models.ModelMetrics, error) {
	return b.svc.Metrics()
}

func (b *LocalBackend) Status(ctx context.Context) models.ModelStatus {
	return b.svc.Status()
}

// NewPredictionBackend selects the backend once at startup from cfg.PredictionBackend.
// For the local backend a missing artifact is not fatal: the service starts unloaded
// and answers model_unavailable until it is restarted with a trained model.
func NewPredictionBackend(cfg *config.Config, log *logger.Logger) (PredictionBackend, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch strings.ToLower(cfg.PredictionBackend) {
	case BackendRemote:
		// ミラーが同じ API_KEY で保護されている場合に備え、専用キーが無ければ自身のキーを使う
		key := cfg.RemoteAPIKey
		if key == "" {
			key = cfg.APIKey
		}
		log.Info("using remote prediction backend", "url", cfg.RemoteAPIURL, "timeout", cfg.RemoteTimeout.String(), "api_key_set", key != "")
		rb, err := NewRemoteBackend(cfg.RemoteAPIURL, key, cfg.RemoteTimeout, nil)
		if err != nil {
			return nil, err
		}
		return rb, nil
	case BackendLocal, "":
		svc, err := LoadForecastService(cfg.ModelDir)
		if err != nil {
			log.Warn("model artifact not available, serving without a model", "dir", cfg.ModelDir, "error", err)
			return NewLocalBackend(nil), nil
		}
		a := svc.Artifact()
		log.Info("model loaded",
			"dir", cfg.ModelDir,
			"id", a.ID,
			"model_type", a.ModelType,
			"trained_at", a.TrainedAt.Format(time.RFC3339),
			"units_r2", a.Metrics.UnitsR2,
		)
		return NewLocalBackend(svc), nil
	default:
		return nil, fmt.Errorf("unknown prediction backend %q", cfg.PredictionBackend)
	}
}
