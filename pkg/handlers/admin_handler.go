package handlers

import (
	"crypto/subtle"
	"net/http"
	"sync/atomic"
	"time"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MaintenanceMode はサーバーがメンテナンス中かどうかを保持します。
// AdminHandler と ForecastHandler で共有する
type MaintenanceMode struct {
	enabled atomic.Bool
}

func (m *MaintenanceMode) Enabled() bool {
	return m != nil && m.enabled.Load()
}

func (m *MaintenanceMode) set(v bool) { m.enabled.Store(v) }

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	AdminUsername string
	AdminPassword string

	maintenance *MaintenanceMode
	backend     services.PredictionBackend
	startedAt   time.Time
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, backend services.PredictionBackend, maintenance *MaintenanceMode) *AdminHandler {
	return &AdminHandler{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		maintenance:   maintenance,
		backend:       backend,
		startedAt:     time.Now(),
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}
	// 認証情報が未設定なら管理操作は常に拒否
	if h.AdminUsername == "" || h.AdminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.AdminUsername)) != 1 ||
		subtle.ConstantTimeCompare([]byte(input.Password), []byte(h.AdminPassword)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.set(true)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.set(false)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーとモデルの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	status := h.backend.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"isMaintenanceMode": h.maintenance.Enabled(),
		"backend":           h.backend.Name(),
		"model":             status,
		"uptimeSeconds":     int64(time.Since(h.startedAt).Seconds()),
	})
}
