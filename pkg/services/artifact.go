package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"kicks-forecast-api/pkg/models"
)

// ArtifactSchemaVersion 成果物JSONのスキーマバージョン
const ArtifactSchemaVersion = 1

// 成果物ディレクトリ内のファイル名
const (
	ArtifactFileName = "units_predictor.json"
	MetadataFileName = "metadata.json"
)

// 特徴量ベクトルの列名
const (
	FeatureRetailer     = "Retailer_encoded"
	FeatureRegion       = "Region_encoded"
	FeatureProduct      = "Product_encoded"
	FeatureSalesMethod  = "Sales Method_encoded"
	FeaturePricePerUnit = "Price per Unit"
	FeatureMonth        = "Month"
	FeatureQuarter      = "Quarter"
)

// FeatureColumns is the column order the trainer writes into new artifacts.
var FeatureColumns = []string{
	FeatureRetailer, FeatureRegion, FeatureProduct, FeatureSalesMethod,
	FeaturePricePerUnit, FeatureMonth, FeatureQuarter,
}

// TrainingSummary 学習条件とサンプル数
type TrainingSummary struct {
	DataSource         string  `json:"data_source,omitempty"`
	Seed               int64   `json:"seed"`
	TestSize           float64 `json:"test_size"`
	TotalSamples       int     `json:"total_samples"`
	TrainSamples       int     `json:"train_samples"`
	TestSamples        int     `json:"test_samples"`
	IdentityViolations int     `json:"identity_violations"`
}

// Artifact 学習済みモデル一式（エンコーダ・回帰モデル・評価指標）
type Artifact struct {
	SchemaVersion      int                                `json:"schema_version"`
	ID                 string                             `json:"id"`
	ModelType          string                             `json:"model_type"`
	TrainedAt          time.Time                          `json:"trained_at"`
	Description        string                             `json:"description"`
	CategoricalColumns []string                           `json:"categorical_columns"`
	FeatureColumns     []string                           `json:"feature_columns"`
	Encoders           map[string]map[string]int          `json:"encoders"`
	Metrics            models.ModelMetrics                `json:"metrics"`
	Candidates         map[string]models.RegressionScores `json:"candidates"`
	Selection          string                             `json:"selection"`
	Training           TrainingSummary                    `json:"training"`

	Linear *LinearRegression `json:"linear,omitempty"`
	Forest *RandomForest     `json:"forest,omitempty"`
}

// Regressor returns the selected model.
func (a *Artifact) Regressor() (Regressor, error) {
	switch a.ModelType {
	case ModelTypeLinearRegression:
		if a.Linear == nil {
			return nil, errors.New("linear model parameters missing")
		}
		return a.Linear, nil
	case ModelTypeRandomForest:
		if a.Forest == nil {
			return nil, errors.New("random forest parameters missing")
		}
		return a.Forest, nil
	default:
		return nil, fmt.Errorf("unknown model type %q", a.ModelType)
	}
}

// Validate checks the artifact is internally consistent before it is served.
func (a *Artifact) Validate() error {
	if a.SchemaVersion != ArtifactSchemaVersion {
		return fmt.Errorf("unsupported schema version %d", a.SchemaVersion)
	}
	if len(a.FeatureColumns) == 0 {
		return errors.New("feature columns missing")
	}
	seen := make(map[string]bool, len(a.FeatureColumns))
	for _, col := range a.FeatureColumns {
		if !isKnownFeature(col) {
			return fmt.Errorf("unknown feature column %q", col)
		}
		if seen[col] {
			return fmt.Errorf("duplicate feature column %q", col)
		}
		seen[col] = true
	}
	if _, err := NewEncoderSet(a.Encoders); err != nil {
		return err
	}

	model, err := a.Regressor()
	if err != nil {
		return err
	}
	switch m := model.(type) {
	case *LinearRegression:
		if len(m.Coefficients) != len(a.FeatureColumns) {
			return fmt.Errorf("linear model has %d coefficients for %d features", len(m.Coefficients), len(a.FeatureColumns))
		}
		if !isFinite(m.Intercept) {
			return errors.New("linear model intercept is not finite")
		}
		for _, c := range m.Coefficients {
			if !isFinite(c) {
				return errors.New("linear model coefficient is not finite")
			}
		}
	case *RandomForest:
		if len(m.Trees) == 0 {
			return errors.New("random forest has no trees")
		}
		for i, t := range m.Trees {
			if t == nil {
				return fmt.Errorf("tree %d missing", i)
			}
			if err := t.validate(len(a.FeatureColumns)); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	}
	return nil
}

func isKnownFeature(col string) bool {
	for _, c := range FeatureColumns {
		if c == col {
			return true
		}
	}
	return false
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SaveArtifact writes the artifact and metadata into dir.
// Each file is written to a temporary name first and renamed into place.
func SaveArtifact(dir string, a *Artifact, meta *models.Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, ArtifactFileName), a); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, MetadataFileName), meta)
}

func writeJSONAtomic(path string, v interface{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadArtifact reads and validates the artifact and metadata from dir.
// Every failure wraps ErrArtifactUnavailable.
func LoadArtifact(dir string) (*Artifact, *models.Metadata, error) {
	var a Artifact
	if err := readJSON(filepath.Join(dir, ArtifactFileName), &a); err != nil {
		return nil, nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrArtifactUnavailable, ArtifactFileName, err)
	}

	var meta models.Metadata
	if err := readJSON(filepath.Join(dir, MetadataFileName), &meta); err != nil {
		return nil, nil, err
	}
	return &a, &meta, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrArtifactUnavailable, filepath.Base(path), err)
	}
	return nil
}
