package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"kicks-forecast-api/pkg/logger"
	"kicks-forecast-api/pkg/models"
	"kicks-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// アップロードファイルの上限（10MB）
const maxUploadBytes = 10 << 20

// DatasetHandler 学習用データの検証ハンドラー
type DatasetHandler struct {
	log *logger.Logger
}

// NewDatasetHandler log は nil 可
func NewDatasetHandler(log *logger.Logger) *DatasetHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DatasetHandler{log: log}
}

// AnalyzeDataset は multipart の "file"（.csv / .xlsx）を読み込み、学習前の検証結果を返す
func (h *DatasetHandler) AnalyzeDataset(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Missing required field: file"})
		return
	}
	defer file.Close()

	name := filepath.Base(fileHeader.Filename)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unsupported file format: upload a .csv or .xlsx file"})
		return
	}

	ds, err := services.ReadSalesDataset(file, name)
	if err != nil {
		h.log.Warn("dataset rejected", "file", name, "error", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	report := services.AnalyzeSalesDataset(ds)
	h.log.Info("dataset analyzed",
		"file", name,
		"records", report.Records,
		"skipped_rows", report.SkippedRows,
		"identity_violations", report.IdentityViolations,
	)
	c.JSON(http.StatusOK, report)
}
