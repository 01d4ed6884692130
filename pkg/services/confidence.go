package services

import "math"

// 95%区間の正規近似係数
const confidenceMultiplier = 1.96

// 信頼度レベル
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// UnitsBand 販売数の点推定と区間
type UnitsBand struct {
	Point  float64
	Lower  float64
	Upper  float64
	Margin float64
}

// ConfidenceEstimate 区間と信頼度スコア
type ConfidenceEstimate struct {
	Units UnitsBand
	Score float64
	Level string
}

// EstimateConfidence builds a symmetric band of 1.96 × MAE around the point prediction
// and scores it by the inverse coefficient of variation.
//
// This is a heuristic, not a calibrated interval: it assumes residuals are homoscedastic
// and roughly normal, which is never checked per request.
func EstimateConfidence(predicted, mae float64) ConfidenceEstimate {
	margin := mae * confidenceMultiplier
	band := UnitsBand{
		Point:  predicted,
		Lower:  math.Max(0, predicted-margin),
		Upper:  predicted + margin,
		Margin: margin,
	}

	cv := mae / math.Max(predicted, 1)
	score := 100 * (1 - math.Min(cv, 1))
	score = math.Max(0, math.Min(100, score))

	return ConfidenceEstimate{Units: band, Score: score, Level: ConfidenceLevel(score)}
}

// ConfidenceLevel maps a 0-100 score to High (>= 75), Medium (>= 50) or Low.
func ConfidenceLevel(score float64) string {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RevenueBand 売上の点推定と区間
type RevenueBand struct {
	Point  float64
	Lower  float64
	Upper  float64
	Margin float64
}

// DeriveRevenue は販売数の区間に単価を掛けて売上区間を求める。
// Margin は学習時の売上MAE（実際の過去単価で計算）× 1.96 であり、
// Lower/Upper（要求単価でスケール）とは一致しない。
func DeriveRevenue(units UnitsBand, pricePerUnit, revenueMAE float64) RevenueBand {
	return RevenueBand{
		Point:  units.Point * pricePerUnit,
		Lower:  units.Lower * pricePerUnit,
		Upper:  units.Upper * pricePerUnit,
		Margin: revenueMAE * confidenceMultiplier,
	}
}
