package services

import (
	"errors"
	"math"
	"sort"

	"kicks-forecast-api/pkg/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errNotPositiveDefinite = errors.New("matrix is not positive definite")

// solveSymmetric solves A*x=b for symmetric positive definite A by Cholesky.
// A numerically singular A is reported as errNotPositiveDefinite.
func solveSymmetric(A *mat.SymDense, b *mat.VecDense) (*mat.VecDense, error) {
	n := A.SymmetricDim()
	if n == 0 {
		return nil, errors.New("empty system")
	}
	if b.Len() != n {
		return nil, errors.New("dimension mismatch")
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return nil, errNotPositiveDefinite
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, errNotPositiveDefinite
		}
		return nil, err
	}
	return &x, nil
}

// ScoreRegression はMAE・RMSE・R²をまとめて計算する
func ScoreRegression(actual, predicted []float64) models.RegressionScores {
	return models.RegressionScores{
		MAE:  meanAbsoluteError(actual, predicted),
		RMSE: rootMeanSquaredError(actual, predicted),
		R2:   r2Score(actual, predicted),
	}
}

func meanAbsoluteError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(actual, predicted, 1) / float64(len(actual))
}

func rootMeanSquaredError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(actual, predicted, 2) / math.Sqrt(float64(len(actual)))
}

// r2Score 決定係数。実測値が定数の場合は完全一致なら1、それ以外は0とする
func r2Score(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if lo, hi := minMax(actual); lo == hi {
		if floats.Equal(actual, predicted) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// calculateMedian 中央値（偶数個の場合は中央2値の平均）
func calculateMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return floats.Min(values), floats.Max(values)
}

// pearson 2つの系列のピアソン相関係数（分散0なら ok=false）
func pearson(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// sampleStdDev 標本標準偏差（n-1）
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// interpretCorrelation 相関の強さを言葉にする
func interpretCorrelation(r float64) string {
	absR := math.Abs(r)
	var strength string
	switch {
	case absR >= 0.7:
		strength = "strong"
	case absR >= 0.4:
		strength = "moderate"
	case absR >= 0.2:
		strength = "weak"
	default:
		return "negligible"
	}
	if r < 0 {
		return strength + " negative"
	}
	return strength + " positive"
}
