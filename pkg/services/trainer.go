package services

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"kicks-forecast-api/pkg/logger"
	"kicks-forecast-api/pkg/models"

	"github.com/google/uuid"
)

const artifactDescription = "Units Predictor - predicts Units Sold, then derives Total Sales = Units x Price"

// TrainingConfig 学習パラメータ
type TrainingConfig struct {
	Seed     int64
	TestSize float64
	NumTrees int
	MaxDepth int // 0 は深さ無制限
}

// DefaultTrainingConfig seed 42, 20% holdout, 100 fully grown trees.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{Seed: 42, TestSize: 0.2, NumTrees: 100}
}

func (c TrainingConfig) validate() error {
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1), got %v", c.TestSize)
	}
	if c.NumTrees <= 0 {
		return fmt.Errorf("num trees must be positive, got %d", c.NumTrees)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", c.MaxDepth)
	}
	return nil
}

// TrainingReport 学習結果の要約（CLI出力・ログ用）
type TrainingReport struct {
	TotalRecords       int                                `json:"total_records"`
	TrainSamples       int                                `json:"train_samples"`
	TestSamples        int                                `json:"test_samples"`
	IdentityViolations int                                `json:"identity_violations"`
	Candidates         map[string]models.RegressionScores `json:"candidates"`
	ModelType          string                             `json:"model_type"`
	Selection          string                             `json:"selection"`
	Metrics            models.ModelMetrics                `json:"metrics"`
}

// TrainingResult 学習で得た成果物とメタデータ
type TrainingResult struct {
	Artifact *Artifact
	Metadata *models.Metadata
	Report   TrainingReport
}

// Trainer は販売実績から販売数予測モデルを学習する
type Trainer struct {
	cfg TrainingConfig
	log *logger.Logger
	now func() time.Time
}

// NewTrainer creates a trainer. A nil logger discards output.
func NewTrainer(cfg TrainingConfig, log *logger.Logger) *Trainer {
	if log == nil {
		log = logger.Nop()
	}
	return &Trainer{cfg: cfg, log: log, now: time.Now}
}

// WithClock replaces the clock used for trained_at.
func (t *Trainer) WithClock(now func() time.Time) *Trainer {
	t.now = now
	return t
}

// TrainFile loads the dataset at dataPath, trains, and writes the artifact into outDir.
func (t *Trainer) TrainFile(dataPath, outDir string) (*TrainingResult, error) {
	ds, err := LoadSalesDataset(dataPath)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if ds.SkippedRows > 0 {
		t.log.Warn("skipped unparseable rows", "file", dataPath, "skipped", ds.SkippedRows)
	}
	t.log.Info("dataset loaded", "file", dataPath, "records", len(ds.Records))

	res, err := t.Train(ds.Records)
	if err != nil {
		return nil, err
	}
	res.Artifact.Training.DataSource = dataPath

	if err := SaveArtifact(outDir, res.Artifact, res.Metadata); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	t.log.Info("artifact saved", "dir", outDir, "id", res.Artifact.ID, "model_type", res.Artifact.ModelType)
	return res, nil
}

// selectModel はホールドアウトの R² で採用モデルを決める。
// ランダムフォレストは厳密に上回った場合のみ採用し、同点は線形回帰。
func selectModel(linear, forest models.RegressionScores) (modelType, selection string) {
	if forest.R2 > linear.R2 {
		return ModelTypeRandomForest, fmt.Sprintf("RandomForest selected (R2 %.4f > %.4f)", forest.R2, linear.R2)
	}
	return ModelTypeLinearRegression, fmt.Sprintf("LinearRegression selected (R2 %.4f >= %.4f)", linear.R2, forest.R2)
}

// artifactID derives the artifact ID from the training config and the input records,
// so retraining on the same data with the same seed yields the same ID.
func artifactID(cfg TrainingConfig, records []models.HistoricalRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%g|%d|%d\n", cfg.Seed, cfg.TestSize, cfg.NumTrees, cfg.MaxDepth)
	for _, r := range records {
		fmt.Fprintf(h, "%s|%s|%s|%s|%g|%d|%d|%g|%g\n",
			r.Retailer, r.Region, r.Product, r.SalesMethod,
			r.PricePerUnit, r.Month, r.Quarter, r.UnitsSold, r.TotalSales)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil)).String()
}

// Train fits both candidate models on a seeded split and keeps the better one.
// The same records and config always produce the same model and metrics.
func (t *Trainer) Train(records []models.HistoricalRecord) (*TrainingResult, error) {
	if err := t.cfg.validate(); err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("need at least 2 records to train, got %d", len(records))
	}

	violations := CountIdentityViolations(records)
	if violations > 0 {
		t.log.Warn("total sales does not equal price x units", "violations", violations, "records", len(records))
	}

	enc := FitEncoderSet(records)
	X := make([][]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		x, err := buildFeatures(FeatureColumns, enc, inputFromRecord(r))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		X[i] = x
		y[i] = r.UnitsSold
	}

	trainIdx, testIdx, err := splitIndices(len(records), t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	Xtr, ytr := subset(X, y, trainIdx)
	Xte, yte := subset(X, y, testIdx)

	linear := NewLinearRegression()
	if err := linear.Fit(Xtr, ytr); err != nil {
		return nil, err
	}
	forest := NewRandomForest(t.cfg.NumTrees, t.cfg.MaxDepth, t.cfg.Seed)
	if err := forest.Fit(Xtr, ytr); err != nil {
		return nil, err
	}

	predLinear := predictAll(linear, Xte)
	predForest := predictAll(forest, Xte)
	linearScores := ScoreRegression(yte, predLinear)
	forestScores := ScoreRegression(yte, predForest)

	var (
		chosen    Regressor
		predicted []float64
		scores    models.RegressionScores
	)
	modelType, selection := selectModel(linearScores, forestScores)
	if modelType == ModelTypeRandomForest {
		chosen, predicted, scores = forest, predForest, forestScores
	} else {
		chosen, predicted, scores = linear, predLinear, linearScores
	}
	t.log.Info("model selected", "linear_r2", linearScores.R2, "forest_r2", forestScores.R2, "model_type", chosen.ModelType())

	// 売上指標はホールドアウトの実際の単価で計算する
	actualRevenue := make([]float64, len(testIdx))
	predictedRevenue := make([]float64, len(testIdx))
	for k, i := range testIdx {
		price := records[i].PricePerUnit
		actualRevenue[k] = records[i].UnitsSold * price
		predictedRevenue[k] = predicted[k] * price
	}
	revenueScores := ScoreRegression(actualRevenue, predictedRevenue)

	metrics := models.ModelMetrics{
		UnitsMAE:    scores.MAE,
		UnitsRMSE:   scores.RMSE,
		UnitsR2:     scores.R2,
		RevenueMAE:  revenueScores.MAE,
		RevenueRMSE: revenueScores.RMSE,
		RevenueR2:   revenueScores.R2,
	}
	candidates := map[string]models.RegressionScores{
		ModelTypeLinearRegression: linearScores,
		ModelTypeRandomForest:     forestScores,
	}

	artifact := &Artifact{
		SchemaVersion:      ArtifactSchemaVersion,
		ID:                 artifactID(t.cfg, records),
		ModelType:          chosen.ModelType(),
		TrainedAt:          t.now().UTC(),
		Description:        artifactDescription,
		CategoricalColumns: append([]string(nil), CategoricalColumns...),
		FeatureColumns:     append([]string(nil), FeatureColumns...),
		Encoders:           enc.Vocabularies(),
		Metrics:            metrics,
		Candidates:         candidates,
		Selection:          selection,
		Training: TrainingSummary{
			Seed:               t.cfg.Seed,
			TestSize:           t.cfg.TestSize,
			TotalSamples:       len(records),
			TrainSamples:       len(trainIdx),
			TestSamples:        len(testIdx),
			IdentityViolations: violations,
		},
	}
	switch m := chosen.(type) {
	case *LinearRegression:
		artifact.Linear = m
	case *RandomForest:
		artifact.Forest = m
	}

	return &TrainingResult{
		Artifact: artifact,
		Metadata: BuildMetadata(records),
		Report: TrainingReport{
			TotalRecords:       len(records),
			TrainSamples:       len(trainIdx),
			TestSamples:        len(testIdx),
			IdentityViolations: violations,
			Candidates:         candidates,
			ModelType:          chosen.ModelType(),
			Selection:          selection,
			Metrics:            metrics,
		},
	}, nil
}

// CountIdentityViolations counts records where price x units != total sales (exact comparison).
func CountIdentityViolations(records []models.HistoricalRecord) int {
	n := 0
	for _, r := range records {
		if r.PricePerUnit*r.UnitsSold != r.TotalSales {
			n++
		}
	}
	return n
}

// splitIndices は seed 固定の順列の先頭 ceil(testSize*n) 件をテスト側にする
func splitIndices(n int, testSize float64, seed int64) ([]int, []int, error) {
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || nTest >= n {
		return nil, nil, errors.New("dataset too small for the requested test split")
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for k, i := range idx {
		xs[k] = X[i]
		ys[k] = y[i]
	}
	return xs, ys
}

// BuildMetadata はドロップダウン用の語彙と数値レンジをまとめる
func BuildMetadata(records []models.HistoricalRecord) *models.Metadata {
	enc := FitEncoderSet(records)
	prices := make([]float64, len(records))
	units := make([]float64, len(records))
	for i, r := range records {
		prices[i] = r.PricePerUnit
		units[i] = r.UnitsSold
	}
	pMin, pMax := minMax(prices)
	uMin, uMax := minMax(units)

	return &models.Metadata{
		Retailers:    enc.Encoder(ColumnRetailer).Classes(),
		Regions:      enc.Encoder(ColumnRegion).Classes(),
		Products:     enc.Encoder(ColumnProduct).Classes(),
		SalesMethods: enc.Encoder(ColumnSalesMethod).Classes(),
		Months:       append([]string(nil), MonthNames...),
		Quarters:     []int{1, 2, 3, 4},
		PriceRange:   models.PriceRange{Min: pMin, Max: pMax, Avg: calculateMean(prices)},
		UnitsRange: models.UnitsRange{
			Min:    uMin,
			Max:    uMax,
			Avg:    calculateMean(units),
			Median: calculateMedian(units),
		},
	}
}
