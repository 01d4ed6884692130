package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"kicks-forecast-api/pkg/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ForecastService 学習済みモデルで販売数・売上を予測する。
// 構築後は不変なので並行呼び出しに対して安全
type ForecastService struct {
	artifact *Artifact
	metadata *models.Metadata
	encoders *EncoderSet
	model    Regressor
}

// NewForecastService wraps an in-memory artifact. A nil artifact yields a service
// that answers ErrModelNotLoaded.
func NewForecastService(artifact *Artifact, metadata *models.Metadata) (*ForecastService, error) {
	if artifact == nil {
		return &ForecastService{}, nil
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	enc, err := NewEncoderSet(artifact.Encoders)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	model, err := artifact.Regressor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	return &ForecastService{artifact: artifact, metadata: metadata, encoders: enc, model: model}, nil
}

// LoadForecastService loads the artifact from dir.
func LoadForecastService(dir string) (*ForecastService, error) {
	artifact, metadata, err := LoadArtifact(dir)
	if err != nil {
		return nil, err
	}
	return NewForecastService(artifact, metadata)
}

// Loaded はモデルが利用可能かを返す
func (s *ForecastService) Loaded() bool { return s.model != nil }

// Artifact returns the loaded artifact or nil.
func (s *ForecastService) Artifact() *Artifact { return s.artifact }

// Predict forecasts units sold and revenue for one request.
func (s *ForecastService) Predict(req models.PredictRequest) (result *models.PredictionResult, err error) {
	if !s.Loaded() {
		return nil, ErrModelNotLoaded
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	x, err := buildFeatures(s.artifact.FeatureColumns, s.encoders, inputFromRequest(req))
	if err != nil {
		if errors.Is(err, ErrUnknownCategory) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPredictionFailed, err)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrPredictionFailed, r)
		}
	}()

	units := s.model.Predict(x)
	if math.IsNaN(units) || math.IsInf(units, 0) {
		return nil, fmt.Errorf("%w: model returned %v", ErrPredictionFailed, units)
	}
	units = math.Max(0, units)

	m := s.artifact.Metrics
	conf := EstimateConfidence(units, m.UnitsMAE)
	revenue := DeriveRevenue(conf.Units, req.PricePerUnit, m.RevenueMAE)

	return &models.PredictionResult{
		PredictedUnits:  units,
		PredictedSales:  revenue.Point,
		PricePerUnit:    req.PricePerUnit,
		UnitsLower:      conf.Units.Lower,
		UnitsUpper:      conf.Units.Upper,
		UnitsMargin:     conf.Units.Margin,
		SalesLower:      revenue.Lower,
		SalesUpper:      revenue.Upper,
		SalesMargin:     revenue.Margin,
		ConfidenceScore: conf.Score,
		ConfidenceLevel: conf.Level,
		ModelType:       s.artifact.ModelType,
		UnitsR2:         m.UnitsR2,
		UnitsMAE:        m.UnitsMAE,
		RevenueR2:       m.RevenueR2,
		RevenueMAE:      m.RevenueMAE,
	}, nil
}

func validateRequest(req models.PredictRequest) error {
	if math.IsNaN(req.PricePerUnit) || math.IsInf(req.PricePerUnit, 0) {
		return fmt.Errorf("%w: price_per_unit must be a finite number", ErrMalformedInput)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", jsonFieldName(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrMalformedInput, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return nil
}

func jsonFieldName(field string) string {
	switch field {
	case "SalesMethod":
		return "sales_method"
	case "PricePerUnit":
		return "price_per_unit"
	default:
		return strings.ToLower(field)
	}
}

// Status はヘルスチェック用の状態を返す
func (s *ForecastService) Status() models.ModelStatus {
	if !s.Loaded() {
		return models.ModelStatus{Available: false, Message: "Model not loaded"}
	}
	return models.ModelStatus{Available: true, Message: "Model ready for predictions"}
}

// Metadata returns the dropdown metadata saved with the model.
func (s *ForecastService) Metadata() (*models.Metadata, error) {
	if !s.Loaded() || s.metadata == nil {
		return nil, ErrModelNotLoaded
	}
	return s.metadata, nil
}

// Metrics returns the holdout metrics of the selected model.
func (s *ForecastService) Metrics() (*models.ModelMetrics, error) {
	if !s.Loaded() {
		return nil, ErrModelNotLoaded
	}
	m := s.artifact.Metrics
	return &m, nil
}
