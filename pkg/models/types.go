package models

import "time"

// HistoricalRecord 販売実績1件（学習データ）
type HistoricalRecord struct {
	Retailer     string    `json:"retailer"`
	Region       string    `json:"region"`
	Product      string    `json:"product"`
	SalesMethod  string    `json:"sales_method"`
	PricePerUnit float64   `json:"price_per_unit"`
	Month        int       `json:"month"`   // 1-12
	Quarter      int       `json:"quarter"` // 1-4
	UnitsSold    float64   `json:"units_sold"`
	TotalSales   float64   `json:"total_sales"`
	InvoiceDate  time.Time `json:"invoice_date,omitempty"`
}

// PredictRequest 需要予測リクエスト
// Month は 1-12 の整数のみ受け付ける（月名は不可）
type PredictRequest struct {
	Retailer     string  `json:"retailer" validate:"required"`
	Region       string  `json:"region" validate:"required"`
	Product      string  `json:"product" validate:"required"`
	SalesMethod  string  `json:"sales_method" validate:"required"`
	PricePerUnit float64 `json:"price_per_unit" validate:"gt=0"`
	Month        int     `json:"month" validate:"min=1,max=12"`
	Quarter      int     `json:"quarter" validate:"min=1,max=4"`
}

// PredictionResult 需要予測結果（販売数と売上、信頼区間）
type PredictionResult struct {
	PredictedUnits float64 `json:"predicted_units"`
	PredictedSales float64 `json:"predicted_sales"`
	PricePerUnit   float64 `json:"price_per_unit"`

	// 信頼区間
	UnitsLower  float64 `json:"units_lower"`
	UnitsUpper  float64 `json:"units_upper"`
	UnitsMargin float64 `json:"units_margin"`
	SalesLower  float64 `json:"sales_lower"`
	SalesUpper  float64 `json:"sales_upper"`
	SalesMargin float64 `json:"sales_margin"`

	// 信頼度
	ConfidenceScore float64 `json:"confidence_score"`
	ConfidenceLevel string  `json:"confidence_level"`

	// モデル指標（参考値）
	ModelType  string  `json:"model_type"`
	UnitsR2    float64 `json:"units_r2"`
	UnitsMAE   float64 `json:"units_mae"`
	RevenueR2  float64 `json:"revenue_r2"`
	RevenueMAE float64 `json:"revenue_mae"`
}

// ModelMetrics ホールドアウトで計測した誤差指標
type ModelMetrics struct {
	UnitsMAE    float64 `json:"units_mae"`
	UnitsRMSE   float64 `json:"units_rmse"`
	UnitsR2     float64 `json:"units_r2"`
	RevenueMAE  float64 `json:"revenue_mae"`
	RevenueRMSE float64 `json:"revenue_rmse"`
	RevenueR2   float64 `json:"revenue_r2"`
}

// RegressionScores 単一ターゲットの誤差指標
type RegressionScores struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// PriceRange 単価の範囲
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// UnitsRange 販売数の範囲
type UnitsRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
}

// Metadata UIのドロップダウン用メタデータ
type Metadata struct {
	Retailers    []string   `json:"retailers"`
	Regions      []string   `json:"regions"`
	Products     []string   `json:"products"`
	SalesMethods []string   `json:"sales_methods"`
	Months       []string   `json:"months"`
	Quarters     []int      `json:"quarters"`
	PriceRange   PriceRange `json:"price_range"`
	UnitsRange   UnitsRange `json:"units_range"`
}

// ModelStatus モデルの利用可否
type ModelStatus struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error string `json:"error"`
}

// FeatureCorrelation 特徴量と販売数の相関
type FeatureCorrelation struct {
	Feature        string  `json:"feature"`
	Coefficient    float64 `json:"coefficient"`
	Interpretation string  `json:"interpretation"`
}

// GroupStats カテゴリ別の売上統計
type GroupStats struct {
	Group  string  `json:"group"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// CombinationCoverage カテゴリ組み合わせの網羅率
type CombinationCoverage struct {
	Observed    int     `json:"observed"`
	Theoretical int     `json:"theoretical"`
	CoveragePct float64 `json:"coverage_pct"`
	Missing     int     `json:"missing"`
	UnderTen    int     `json:"under_10_samples"`
	UnderFive   int     `json:"under_5_samples"`
}

// DatasetReport アップロードされた販売実績の検証結果
type DatasetReport struct {
	Source             string               `json:"source"`
	Records            int                  `json:"records"`
	SkippedRows        int                  `json:"skipped_rows"`
	IdentityMatches    int                  `json:"identity_matches"`
	IdentityViolations int                  `json:"identity_violations"`
	Correlations       []FeatureCorrelation `json:"correlations"`
	Coverage           CombinationCoverage  `json:"coverage"`
	BySalesMethod      []GroupStats         `json:"by_sales_method"`
	ByRetailer         []GroupStats         `json:"by_retailer"`
	ByRegion           []GroupStats         `json:"by_region"`
	Metadata           Metadata             `json:"metadata"`
}
