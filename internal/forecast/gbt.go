package forecast

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// GBTConfig holds hyperparameters for gradient-boosted tree training.
type GBTConfig struct {
	NumTrees     int
	MaxDepth     int
	LearningRate float64
	MinLeaf      int
	Seed         uint64
}

// DefaultGBTConfig matches the standard trainer: 100 trees of depth 3 at
// learning rate 0.1.
func DefaultGBTConfig() GBTConfig {
	return GBTConfig{
		NumTrees:     100,
		MaxDepth:     3,
		LearningRate: 0.1,
		MinLeaf:      2,
		Seed:         42,
	}
}

// LimitedGBTConfig reduces model complexity for small samples: 50 trees of
// depth 2.
func LimitedGBTConfig() GBTConfig {
	cfg := DefaultGBTConfig()
	cfg.NumTrees = 50
	cfg.MaxDepth = 2
	return cfg
}

// GBT is a least-squares gradient-boosted tree ensemble. Prediction starts
// from InitValue and adds LearningRate times each tree's output.
type GBT struct {
	InitValue    float64     `json:"init_value"`
	LearningRate float64     `json:"learning_rate"`
	Trees        []*TreeNode `json:"trees"`
}

// TrainGBT fits an ensemble on X/y. Training is deterministic for a fixed
// seed and fixed input ordering.
func TrainGBT(X [][]float64, y []float64, cfg GBTConfig) *GBT {
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))

	g := &GBT{
		InitValue:    stat.Mean(y, nil),
		LearningRate: cfg.LearningRate,
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = g.InitValue
	}

	residual := make([]float64, len(y))
	for t := 0; t < cfg.NumTrees; t++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := buildTree(X, residual, 0, cfg.MaxDepth, cfg.MinLeaf, rng)
		g.Trees = append(g.Trees, tree)
		for i := range pred {
			pred[i] += cfg.LearningRate * tree.Predict(X[i])
		}
	}
	return g
}

// Predict evaluates the ensemble for one feature vector.
func (g *GBT) Predict(x []float64) float64 {
	out := g.InitValue
	for _, tree := range g.Trees {
		out += g.LearningRate * tree.Predict(x)
	}
	return out
}

// MSE computes mean squared error over a dataset.
func (g *GBT) MSE(X [][]float64, y []float64) float64 {
	if len(X) == 0 {
		return 0
	}
	sum := 0.0
	for i := range X {
		d := g.Predict(X[i]) - y[i]
		sum += d * d
	}
	return sum / float64(len(X))
}
