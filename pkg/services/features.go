package services

import (
	"fmt"

	"kicks-forecast-api/pkg/models"
)

// featureInput 特徴量ベクトルの元になる値（学習レコードと予測リクエスト共通）
type featureInput struct {
	Retailer     string
	Region       string
	Product      string
	SalesMethod  string
	PricePerUnit float64
	Month        int
	Quarter      int
}

func inputFromRecord(r models.HistoricalRecord) featureInput {
	return featureInput{
		Retailer: r.Retailer, Region: r.Region, Product: r.Product, SalesMethod: r.SalesMethod,
		PricePerUnit: r.PricePerUnit, Month: r.Month, Quarter: r.Quarter,
	}
}

func inputFromRequest(req models.PredictRequest) featureInput {
	return featureInput{
		Retailer: req.Retailer, Region: req.Region, Product: req.Product, SalesMethod: req.SalesMethod,
		PricePerUnit: req.PricePerUnit, Month: req.Month, Quarter: req.Quarter,
	}
}

// buildFeatures lays out the vector in the given column order.
func buildFeatures(columns []string, enc *EncoderSet, in featureInput) ([]float64, error) {
	x := make([]float64, len(columns))
	for i, col := range columns {
		var err error
		var code int
		switch col {
		case FeatureRetailer:
			code, err = enc.Encode(ColumnRetailer, in.Retailer)
			x[i] = float64(code)
		case FeatureRegion:
			code, err = enc.Encode(ColumnRegion, in.Region)
			x[i] = float64(code)
		case FeatureProduct:
			code, err = enc.Encode(ColumnProduct, in.Product)
			x[i] = float64(code)
		case FeatureSalesMethod:
			code, err = enc.Encode(ColumnSalesMethod, in.SalesMethod)
			x[i] = float64(code)
		case FeaturePricePerUnit:
			x[i] = in.PricePerUnit
		case FeatureMonth:
			x[i] = float64(in.Month)
		case FeatureQuarter:
			x[i] = float64(in.Quarter)
		default:
			err = fmt.Errorf("unknown feature column %q", col)
		}
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}
