package forecast

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticRegression(n int, seed uint64) ([][]float64, []float64) {
	rng := rand.New(rand.NewPCG(seed, 0))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x0 := rng.Float64() * 10
		x1 := rng.Float64() * 10
		X[i] = []float64{x0, x1}
		y[i] = 3*x0 - 2*x1 + 5
	}
	return X, y
}

func TestTrainGBT_FitsLinearTarget(t *testing.T) {
	X, y := syntheticRegression(400, 42)

	g := TrainGBT(X, y, DefaultGBTConfig())
	mse := g.MSE(X, y)
	assert.Less(t, mse, 1.0, "training MSE should be small, got %.3f", mse)
}

func TestTrainGBT_ConstantTargetIsExact(t *testing.T) {
	X, _ := syntheticRegression(50, 1)
	y := make([]float64, len(X))
	for i := range y {
		y[i] = 18
	}

	g := TrainGBT(X, y, DefaultGBTConfig())
	for _, x := range X[:10] {
		assert.InDelta(t, 18.0, g.Predict(x), 1e-9)
	}
}

func TestTrainGBT_DeterministicForFixedSeed(t *testing.T) {
	X, y := syntheticRegression(200, 7)

	a := TrainGBT(X, y, DefaultGBTConfig())
	b := TrainGBT(X, y, DefaultGBTConfig())

	aJSON, err := json.Marshal(a)
	require.NoError(t, err)
	bJSON, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, aJSON, bJSON, "same seed and data must give identical ensembles")
}

func TestLimitedGBTConfig_ReducesComplexity(t *testing.T) {
	std := DefaultGBTConfig()
	limited := LimitedGBTConfig()
	assert.Equal(t, 100, std.NumTrees)
	assert.Equal(t, 3, std.MaxDepth)
	assert.Equal(t, 50, limited.NumTrees)
	assert.Equal(t, 2, limited.MaxDepth)
	assert.Equal(t, std.LearningRate, limited.LearningRate)
}

func TestScaler_RoundTrip(t *testing.T) {
	X := [][]float64{{1, 100}, {2, 200}, {3, 300}}
	s := FitScaler(X)

	scaled := s.TransformAll(X)
	// Column means of the transform are zero, stds are one.
	for j := 0; j < 2; j++ {
		var sum, sumSq float64
		for i := range scaled {
			sum += scaled[i][j]
			sumSq += scaled[i][j] * scaled[i][j]
		}
		assert.InDelta(t, 0.0, sum/3, 1e-10)
		assert.InDelta(t, 1.0, sumSq/3, 1e-10)
	}
}

func TestScaler_ZeroVarianceGuard(t *testing.T) {
	X := [][]float64{{5}, {5}, {5}}
	s := FitScaler(X)
	out := s.Transform([]float64{5})
	assert.Equal(t, 0.0, out[0])
}
