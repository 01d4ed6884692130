package handlers

import (
	"net/http"

	"kicks-forecast-api/pkg/models"
	"kicks-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler はモニタリング関連の操作のハンドラです。
type MonitoringHandler struct {
	Service *services.MonitoringService
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成します。
func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{
		Service: service,
	}
}

// GetLogs は集計されたログデータを返します。
// period は 1h / 24h / 7d（省略時は24h）
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	period, err := services.ParseDashboardPeriod(c.Query("period"))
	if err != nil {
		c.Header(services.ErrorKindHeader, services.ErrorKind(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Service.GetDashboardData(period))
}
