package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kicks-forecast-api/pkg/metrics"
	"kicks-forecast-api/pkg/models"
	"kicks-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ServiceName / Version はバナーとヘルスチェックで返す
const (
	ServiceName = "Kicks Demand Forecast API"
	Version     = "1.0.0"
)

// 予測リクエストの必須フィールド（チェック順）
var requiredPredictFields = []string{
	"retailer", "region", "product", "sales_method", "price_per_unit", "month", "quarter",
}

// ForecastHandler 需要予測ハンドラー
type ForecastHandler struct {
	backend     services.PredictionBackend
	recorder    *metrics.Recorder
	maintenance *MaintenanceMode
}

// NewForecastHandler 新しい需要予測ハンドラーを作成（recorder / maintenance は nil 可）
func NewForecastHandler(backend services.PredictionBackend, recorder *metrics.Recorder, maintenance *MaintenanceMode) *ForecastHandler {
	return &ForecastHandler{backend: backend, recorder: recorder, maintenance: maintenance}
}

// Home サービスのバナー
func (h *ForecastHandler) Home(c *gin.Context) {
	status := h.backend.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":           "online",
		"service":          ServiceName,
		"backend":          h.backend.Name(),
		"models_available": status.Available,
		"version":          Version,
	})
}

// HealthCheck はロードバランサー等のヘルスチェックに応答する。モデル未ロード時は503
func (h *ForecastHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	status := h.backend.Status(c.Request.Context())
	if h.recorder != nil {
		h.recorder.SetModelLoaded(status.Available)
	}
	if !status.Available {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "models": "not loaded", "message": status.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "models": "loaded"})
}

// CheckModels モデルの利用可否
func (h *ForecastHandler) CheckModels(c *gin.Context) {
	c.JSON(http.StatusOK, h.backend.Status(c.Request.Context()))
}

// GetMetadata ドロップダウン用メタデータ
func (h *ForecastHandler) GetMetadata(c *gin.Context) {
	meta, err := h.backend.Metadata(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// GetMetrics モデルの評価指標
func (h *ForecastHandler) GetMetrics(c *gin.Context) {
	m, err := h.backend.Metrics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// PredictDemand 販売数・売上を予測
func (h *ForecastHandler) PredictDemand(c *gin.Context) {
	start := time.Now()

	req, err := bindPredictRequest(c)
	if err != nil {
		h.observe(err, start)
		writeError(c, err)
		return
	}

	result, err := h.backend.Predict(c.Request.Context(), req)
	h.observe(err, start)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ForecastHandler) observe(err error, start time.Time) {
	if h.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = services.ErrorKind(err)
	}
	h.recorder.RecordPrediction(h.backend.Name(), outcome, time.Since(start).Seconds())
}

// bindPredictRequest は必須フィールドの有無を確認してから型変換する。
// 数値は JSON の数値または数値文字列を受け付ける
func bindPredictRequest(c *gin.Context) (models.PredictRequest, error) {
	var req models.PredictRequest

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		return req, fmt.Errorf("%w: invalid JSON body: %v", services.ErrMalformedInput, err)
	}
	for _, field := range requiredPredictFields {
		raw, ok := body[field]
		if !ok || string(raw) == "null" {
			return req, fmt.Errorf("%w: Missing required field: %s", services.ErrMalformedInput, field)
		}
	}

	var err error
	if req.Retailer, err = stringField(body, "retailer"); err != nil {
		return req, err
	}
	if req.Region, err = stringField(body, "region"); err != nil {
		return req, err
	}
	if req.Product, err = stringField(body, "product"); err != nil {
		return req, err
	}
	if req.SalesMethod, err = stringField(body, "sales_method"); err != nil {
		return req, err
	}
	if req.PricePerUnit, err = numberField(body, "price_per_unit"); err != nil {
		return req, err
	}
	if req.Month, err = intField(body, "month"); err != nil {
		return req, err
	}
	if req.Quarter, err = intField(body, "quarter"); err != nil {
		return req, err
	}
	return req, nil
}

func stringField(body map[string]json.RawMessage, field string) (string, error) {
	var s string
	if err := json.Unmarshal(body[field], &s); err != nil {
		return "", fmt.Errorf("%w: Invalid input: %s must be a string", services.ErrMalformedInput, field)
	}
	return s, nil
}

func numberField(body map[string]json.RawMessage, field string) (float64, error) {
	raw := body[field]
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: Invalid input: %s must be a number", services.ErrMalformedInput, field)
}

func intField(body map[string]json.RawMessage, field string) (int, error) {
	f, err := numberField(body, field)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: Invalid input: %s must be an integer", services.ErrMalformedInput, field)
	}
	return int(f), nil
}

// statusForError エラー種別をHTTPステータスに対応付ける
func statusForError(err error) int {
	switch services.ErrorKind(err) {
	case "model_unavailable":
		return http.StatusServiceUnavailable
	case "unknown_category", "malformed_input":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError は {"error": msg} を返し、種別を X-Error-Kind ヘッダーに載せる
func writeError(c *gin.Context, err error) {
	status := statusForError(err)
	msg := err.Error()
	var remote *services.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		msg = remote.Message
	} else if errors.Is(err, services.ErrMalformedInput) {
		msg = strings.TrimPrefix(msg, services.ErrMalformedInput.Error()+": ")
	}
	c.Header(services.ErrorKindHeader, services.ErrorKind(err))
	c.JSON(status, models.ErrorResponse{Error: msg})
}
