package app

import (
	"context"
	"net/http"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/handlers"
	"kicks-forecast-api/pkg/logger"
	"kicks-forecast-api/pkg/metrics"
	"kicks-forecast-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps ルーター構築に必要な依存関係
type Deps struct {
	Config   *config.Config
	Backend  services.PredictionBackend
	Logger   *logger.Logger
	Recorder *metrics.Recorder
}

// New builds the backend from cfg and returns the router.
func New(cfg *config.Config, log *logger.Logger) (*gin.Engine, error) {
	backend, err := services.NewPredictionBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewRouter(Deps{Config: cfg, Backend: backend, Logger: log, Recorder: metrics.New()}), nil
}

// NewRouter は長時間稼働サーバーとサーバーレス関数で共通のGinルーターを構築する
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Recorder == nil {
		d.Recorder = metrics.New()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// サービスの初期化
	monitoringService := services.NewMonitoringService(d.Logger, d.Recorder)
	maintenance := &handlers.MaintenanceMode{}

	// ハンドラーの初期化
	forecastHandler := handlers.NewForecastHandler(d.Backend, d.Recorder, maintenance)
	adminHandler := handlers.NewAdminHandler(d.Config, d.Backend, maintenance)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)
	datasetHandler := handlers.NewDatasetHandler(d.Logger)

	d.Recorder.SetModelLoaded(d.Backend.Status(context.Background()).Available)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, services.APIKeyHeader)
	corsConfig.ExposeHeaders = []string{services.ErrorKindHeader}
	r.Use(cors.New(corsConfig))

	r.GET("/", forecastHandler.Home)
	r.GET("/health", forecastHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(d.Recorder.Handler()))

	api := r.Group("/api")
	api.Use(AuthMiddleware(d.Config.APIKey))
	{
		api.GET("/check-models", forecastHandler.CheckModels)
		api.GET("/metadata", forecastHandler.GetMetadata)
		api.GET("/metrics", forecastHandler.GetMetrics)
		api.POST("/predict", forecastHandler.PredictDemand)

		// 学習データの事前検証
		api.POST("/datasets/analyze", datasetHandler.AnalyzeDataset)

		// モニタリングAPI
		api.GET("/monitoring/logs", monitoringHandler.GetLogs)

		// 管理者向けAPI
		admin := api.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}
	}

	// ダッシュボード互換ルート
	dashboard := r.Group("/ml-prediction/api")
	dashboard.Use(AuthMiddleware(d.Config.APIKey))
	{
		dashboard.POST("/predict-demand", forecastHandler.PredictDemand)
		dashboard.GET("/check-models", forecastHandler.CheckModels)
	}

	return r
}

// AuthMiddleware は API_KEY が設定されている場合のみ X-API-KEY ヘッダーを検証する
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader(services.APIKeyHeader) != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
