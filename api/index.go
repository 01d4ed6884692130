package handler

import (
	"log"
	"net/http"
	"sync"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/app"
	"kicks-forecast-api/pkg/handlers"
	"kicks-forecast-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	engine *gin.Engine
	once   sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() *gin.Engine {
	once.Do(func() {
		// 環境変数はVercelの設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Printf("failed to load config: %v", err)
			engine = unavailableEngine(err)
			return
		}

		zl, err := logger.New(cfg.Environment)
		if err != nil {
			log.Printf("failed to init logger, logging disabled: %v", err)
			zl = logger.Nop()
		}

		r, err := app.New(cfg, zl)
		if err != nil {
			zl.Error("failed to build application", "error", err)
			r = unavailableEngine(err)
		}
		engine = r
	})
	return engine
}

// unavailableEngine は設定不備で起動できない場合にすべて503を返す
func unavailableEngine(cause error) *gin.Engine {
	r := gin.New()
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service misconfigured: " + cause.Error()})
	})
	return r
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Backend-Version", handlers.Version)
	setupApp().ServeHTTP(w, r)
}
