package services

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// モデル種別タグ（成果物に保存される）
const (
	ModelTypeLinearRegression = "LinearRegression"
	ModelTypeRandomForest     = "RandomForest"
)

// Regressor 特徴量ベクトルから販売数を予測する回帰モデル
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
	ModelType() string
}

// LinearRegression 切片付き最小二乗法
type LinearRegression struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// NewLinearRegression 未学習の線形回帰モデルを作成
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

func (m *LinearRegression) ModelType() string { return ModelTypeLinearRegression }

// Fit solves the normal equations [1 X]'[1 X] b = [1 X]'y by Cholesky.
func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("linear regression: %d rows, %d targets", len(X), len(y))
	}
	n, k := len(X), len(X[0])+1

	design := mat.NewDense(n, k, nil)
	for t, features := range X {
		if len(features) != k-1 {
			return fmt.Errorf("linear regression: row %d has %d features, want %d", t, len(features), k-1)
		}
		design.Set(t, 0, 1)
		for j, v := range features {
			design.Set(t, j+1, v)
		}
	}

	var XtX mat.SymDense
	XtX.SymOuterK(1, design.T())
	var Xty mat.VecDense
	Xty.MulVec(design.T(), mat.NewVecDense(n, y))

	beta, err := solveSymmetric(&XtX, &Xty)
	if errors.Is(err, errNotPositiveDefinite) {
		// 定数列や完全な多重共線性がある場合のみ、ごく小さなリッジ項で解く
		ridge := 1e-10 * mat.Trace(&XtX) / float64(k)
		for i := 1; i < k; i++ {
			XtX.SetSym(i, i, XtX.At(i, i)+ridge)
		}
		beta, err = solveSymmetric(&XtX, &Xty)
	}
	if err != nil {
		return fmt.Errorf("linear regression: %w", err)
	}

	m.Intercept = beta.AtVec(0)
	m.Coefficients = make([]float64, k-1)
	for i := range m.Coefficients {
		m.Coefficients[i] = beta.AtVec(i + 1)
	}
	return nil
}

func (m *LinearRegression) Predict(x []float64) float64 {
	out := m.Intercept
	for i, c := range m.Coefficients {
		out += c * x[i]
	}
	return out
}

// predictAll は行列全体を予測する
func predictAll(model Regressor, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = model.Predict(row)
	}
	return out
}
