package services

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"kicks-forecast-api/pkg/models"
	"kicks-forecast-api/pkg/services/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTrainingConfig はテスト用に木の本数を減らした設定
func testTrainingConfig() TrainingConfig {
	return TrainingConfig{Seed: 42, TestSize: 0.2, NumTrees: 10, MaxDepth: 10}
}

var fixedClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func trainSynthetic(t *testing.T) *TrainingResult {
	t.Helper()
	res, err := NewTrainer(testTrainingConfig(), nil).WithClock(fixedClock).Train(servicetest.Records(300, 1))
	require.NoError(t, err)
	return res
}

func TestTrainerReport(t *testing.T) {
	res := trainSynthetic(t)
	r := res.Report

	assert.Equal(t, 300, r.TotalRecords)
	assert.Equal(t, 60, r.TestSamples)
	assert.Equal(t, 240, r.TrainSamples)
	assert.Equal(t, 0, r.IdentityViolations)
	assert.Contains(t, r.Candidates, ModelTypeLinearRegression)
	assert.Contains(t, r.Candidates, ModelTypeRandomForest)
	assert.Contains(t, []string{ModelTypeLinearRegression, ModelTypeRandomForest}, r.ModelType)
	assert.NotEmpty(t, r.Selection)

	// 採用モデルの販売数指標が候補の指標と一致する
	assert.Equal(t, r.Candidates[r.ModelType].MAE, r.Metrics.UnitsMAE)
	assert.Equal(t, r.Candidates[r.ModelType].R2, r.Metrics.UnitsR2)
	if r.ModelType == ModelTypeRandomForest {
		assert.Greater(t, r.Candidates[ModelTypeRandomForest].R2, r.Candidates[ModelTypeLinearRegression].R2)
	} else {
		assert.GreaterOrEqual(t, r.Candidates[ModelTypeLinearRegression].R2, r.Candidates[ModelTypeRandomForest].R2)
	}
	assert.Greater(t, r.Metrics.UnitsR2, 0.5, "synthetic data is learnable")
	assert.Greater(t, r.Metrics.RevenueMAE, 0.0)
}

func TestTrainerArtifact(t *testing.T) {
	res := trainSynthetic(t)
	a := res.Artifact

	require.NoError(t, a.Validate())
	assert.Equal(t, ArtifactSchemaVersion, a.SchemaVersion)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, fixedClock(), a.TrainedAt)
	assert.Equal(t, FeatureColumns, a.FeatureColumns)
	assert.Equal(t, CategoricalColumns, a.CategoricalColumns)
	assert.Equal(t, 42, int(a.Training.Seed))
	assert.Equal(t, 240, a.Training.TrainSamples)
	if a.ModelType == ModelTypeLinearRegression {
		assert.NotNil(t, a.Linear)
		assert.Nil(t, a.Forest)
	} else {
		assert.NotNil(t, a.Forest)
		assert.Nil(t, a.Linear)
	}
}

func TestTrainerDeterministic(t *testing.T) {
	a := trainSynthetic(t)
	b := trainSynthetic(t)

	assert.Equal(t, a.Report, b.Report)
	assert.Equal(t, a.Artifact.Encoders, b.Artifact.Encoders)
	assert.Equal(t, a.Artifact.Linear, b.Artifact.Linear)
	assert.Equal(t, a.Artifact.Forest, b.Artifact.Forest)
	assert.Equal(t, a.Metadata, b.Metadata)
	assert.Equal(t, a.Artifact.ID, b.Artifact.ID)

	cfg := testTrainingConfig()
	cfg.Seed = 7
	c, err := NewTrainer(cfg, nil).WithClock(fixedClock).Train(servicetest.Records(300, 1))
	require.NoError(t, err)
	assert.NotEqual(t, a.Artifact.ID, c.Artifact.ID)
}

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name     string
		linearR2 float64
		forestR2 float64
		want     string
	}{
		{"tie goes to linear", 0.8, 0.8, ModelTypeLinearRegression},
		{"forest strictly better", 0.8, 0.8 + 1e-12, ModelTypeRandomForest},
		{"forest worse", 0.8, 0.5, ModelTypeLinearRegression},
		{"both negative", -0.3, -0.1, ModelTypeRandomForest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, selection := selectModel(models.RegressionScores{R2: tt.linearR2}, models.RegressionScores{R2: tt.forestR2})
			assert.Equal(t, tt.want, got)
			assert.Contains(t, selection, tt.want)
		})
	}
}

func TestTrainerCountsIdentityViolations(t *testing.T) {
	records := servicetest.Records(100, 2)
	records[3].TotalSales += 1
	records[10].TotalSales = 0
	records[50].TotalSales *= 2

	assert.Equal(t, 3, CountIdentityViolations(records))

	// 違反があっても学習は中断しない
	res, err := NewTrainer(testTrainingConfig(), nil).Train(records)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.IdentityViolations)
	assert.Equal(t, 3, res.Artifact.Training.IdentityViolations)
}

func TestTrainerRejectsBadConfig(t *testing.T) {
	records := servicetest.Records(20, 1)

	for _, cfg := range []TrainingConfig{
		{Seed: 1, TestSize: 0, NumTrees: 10},
		{Seed: 1, TestSize: 1, NumTrees: 10},
		{Seed: 1, TestSize: 0.2, NumTrees: 0},
		{Seed: 1, TestSize: 0.2, NumTrees: 10, MaxDepth: -1},
	} {
		_, err := NewTrainer(cfg, nil).Train(records)
		assert.Error(t, err, "%+v", cfg)
	}

	_, err := NewTrainer(testTrainingConfig(), nil).Train(records[:1])
	assert.Error(t, err)
}

func TestSplitIndices(t *testing.T) {
	train, test, err := splitIndices(101, 0.2, 42)
	require.NoError(t, err)

	// n_test = ceil(0.2 * 101) = 21
	assert.Len(t, test, 21)
	assert.Len(t, train, 80)

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	for i, v := range all {
		assert.Equal(t, i, v)
	}

	train2, test2, err := splitIndices(101, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, _, err = splitIndices(1, 0.2, 42)
	assert.Error(t, err)
}

func TestBuildMetadata(t *testing.T) {
	records := servicetest.Records(300, 1)
	meta := BuildMetadata(records)

	assert.Equal(t, servicetest.Retailers, meta.Retailers)
	assert.Equal(t, servicetest.Regions, meta.Regions)
	assert.Equal(t, servicetest.Products, meta.Products)
	assert.Equal(t, servicetest.SalesMethods, meta.SalesMethods)
	assert.Len(t, meta.Months, 12)
	assert.Equal(t, "January", meta.Months[0])
	assert.Equal(t, []int{1, 2, 3, 4}, meta.Quarters)

	assert.LessOrEqual(t, meta.PriceRange.Min, meta.PriceRange.Avg)
	assert.LessOrEqual(t, meta.PriceRange.Avg, meta.PriceRange.Max)
	assert.LessOrEqual(t, meta.UnitsRange.Min, meta.UnitsRange.Median)
	assert.LessOrEqual(t, meta.UnitsRange.Median, meta.UnitsRange.Max)
	assert.False(t, math.IsNaN(meta.UnitsRange.Avg))
}

func TestTrainFileWritesLoadableArtifact(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "sales.csv")
	writeRecordsCSV(t, dataPath, servicetest.Records(200, 5))

	outDir := filepath.Join(dir, "models")
	res, err := NewTrainer(testTrainingConfig(), nil).TrainFile(dataPath, outDir)
	require.NoError(t, err)
	assert.Equal(t, dataPath, res.Artifact.Training.DataSource)

	assert.FileExists(t, filepath.Join(outDir, ArtifactFileName))
	assert.FileExists(t, filepath.Join(outDir, MetadataFileName))

	svc, err := LoadForecastService(outDir)
	require.NoError(t, err)
	assert.True(t, svc.Status().Available)
	assert.Equal(t, res.Artifact.ID, svc.Artifact().ID)
}

func writeRecordsCSV(t *testing.T, path string, records []models.HistoricalRecord) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{"Retailer", "Region", "Product", "Sales Method", "Price per Unit", "Units Sold", "Total Sales", "Month", "Quarter"}))
	for _, r := range records {
		require.NoError(t, w.Write([]string{
			r.Retailer, r.Region, r.Product, r.SalesMethod,
			strconv.FormatFloat(r.PricePerUnit, 'f', -1, 64),
			strconv.FormatFloat(r.UnitsSold, 'f', -1, 64),
			strconv.FormatFloat(r.TotalSales, 'f', -1, 64),
			strconv.Itoa(r.Month),
			strconv.Itoa(r.Quarter),
		}))
	}
	w.Flush()
	require.NoError(t, w.Error())
}
