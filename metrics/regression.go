// Package metrics はフィット結果の適合度指標を計算します。
// 重み付きカイ二乗、自由度あたりのカイ二乗、カイ二乗確率、決定係数などを提供します。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func checkLengths(op string, yTrue, yPred, weights []float64) error {
	n := len(yTrue)
	if n == 0 {
		return errors.NewValueError(op, "empty data")
	}
	if len(yPred) != n {
		return errors.NewDimensionError(op, n, len(yPred))
	}
	if weights != nil && len(weights) != n {
		return errors.NewDimensionError(op, n, len(weights))
	}
	return nil
}

func weightAt(weights []float64, i int) float64 {
	if weights == nil {
		return 1
	}
	return weights[i]
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred []float64) (float64, error) {
	if err := checkLengths("MSE", yTrue, yPred, nil); err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sum += diff * diff
	}
	return sum / float64(len(yTrue)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred []float64) (float64, error) {
	if err := checkLengths("MAE", yTrue, yPred, nil); err != nil {
		return 0, err
	}

	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue)), nil
}

// ChiSquare は重み付き残差平方和 Σ w(yTrue - yPred)² を計算する。
// weights が nil の場合はすべての重みを1とする。
func ChiSquare(yTrue, yPred, weights []float64) (float64, error) {
	if err := checkLengths("ChiSquare", yTrue, yPred, weights); err != nil {
		return 0, err
	}

	var sum float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sum += weightAt(weights, i) * diff * diff
	}
	return sum, nil
}

// R2Score は重み付き決定係数（R²）を計算する。
// 重み0のデータ点は平均にも残差にも寄与しない。
func R2Score(yTrue, yPred, weights []float64) (float64, error) {
	if err := checkLengths("R2Score", yTrue, yPred, weights); err != nil {
		return 0, err
	}

	// 重み付き平均
	var yMean, wSum float64
	for i, y := range yTrue {
		w := weightAt(weights, i)
		yMean += w * y
		wSum += w
	}
	if wSum == 0 {
		return 0, errors.NewValueError("R2Score", "all weights are zero")
	}
	yMean /= wSum

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i, y := range yTrue {
		w := weightAt(weights, i)
		tss += w * (y - yMean) * (y - yMean)
		rss += w * (y - yPred[i]) * (y - yPred[i])
	}
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

// ReducedChiSquare は自由度あたりのカイ二乗を返す。
func ReducedChiSquare(chi2 float64, dof int) (float64, error) {
	if dof <= 0 {
		return 0, errors.NewValueErrorf("ReducedChiSquare", "degrees of freedom must be positive, got %d", dof)
	}
	return chi2 / float64(dof), nil
}

// ChiSquareProbability は自由度 dof のカイ二乗分布で chi2 以上の値が
// 得られる確率（適合度検定のp値）を返す。
func ChiSquareProbability(chi2 float64, dof int) (float64, error) {
	if dof <= 0 {
		return 0, errors.NewValueErrorf("ChiSquareProbability", "degrees of freedom must be positive, got %d", dof)
	}
	if chi2 < 0 {
		return 0, errors.NewValueErrorf("ChiSquareProbability", "chi-square must not be negative, got %g", chi2)
	}
	return distuv.ChiSquared{K: float64(dof)}.Survival(chi2), nil
}

// GoodnessOfFit はフィット結果の適合度指標をまとめたもの
type GoodnessOfFit struct {
	NData   int
	NParams int
	// DOF は NData - NParams
	DOF int

	ChiSquare        float64
	ReducedChiSquare float64
	// Probability は ChiSquareProbability の値。DOF が正でない場合は NaN
	Probability float64
	// R2 は重み付き決定係数。データに分散がない場合は NaN
	R2   float64
	RMSE float64
	MAE  float64
}

// Evaluate は観測値、計算値、重みから適合度指標を計算する。
// nParams はフィットで動かしたパラメータ数で、自由度の計算に使う。
func Evaluate(yTrue, yPred, weights []float64, nParams int) (*GoodnessOfFit, error) {
	chi2, err := ChiSquare(yTrue, yPred, weights)
	if err != nil {
		return nil, err
	}
	g := &GoodnessOfFit{
		NData:            len(yTrue),
		NParams:          nParams,
		DOF:              len(yTrue) - nParams,
		ChiSquare:        chi2,
		ReducedChiSquare: math.NaN(),
		Probability:      math.NaN(),
		R2:               math.NaN(),
	}
	if g.DOF > 0 {
		g.ReducedChiSquare, _ = ReducedChiSquare(chi2, g.DOF)
		g.Probability, _ = ChiSquareProbability(chi2, g.DOF)
	}
	if r2, err := R2Score(yTrue, yPred, weights); err == nil {
		g.R2 = r2
	}
	if g.RMSE, err = RMSE(yTrue, yPred); err != nil {
		return nil, err
	}
	if g.MAE, err = MAE(yTrue, yPred); err != nil {
		return nil, err
	}
	return g, nil
}
