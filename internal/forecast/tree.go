package forecast

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// maxSplitCandidates caps how many thresholds are evaluated per feature.
// Features with more distinct values get a seeded random subsample, which
// keeps training fast and reproducible for a fixed seed.
const maxSplitCandidates = 16

// TreeNode is one node of a regression tree. Leaves carry the predicted
// value; internal nodes split on Feature <= Thresh.
type TreeNode struct {
	Feature int       `json:"feature,omitempty"`
	Thresh  float64   `json:"thresh,omitempty"`
	Left    *TreeNode `json:"left,omitempty"`
	Right   *TreeNode `json:"right,omitempty"`
	Leaf    bool      `json:"leaf,omitempty"`
	Value   float64   `json:"value,omitempty"`
}

// Predict walks the tree for one feature vector.
func (t *TreeNode) Predict(x []float64) float64 {
	if t.Leaf {
		return t.Value
	}
	if x[t.Feature] <= t.Thresh {
		return t.Left.Predict(x)
	}
	return t.Right.Predict(x)
}

func sse(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	m := stat.Mean(y, nil)
	s := 0.0
	for _, v := range y {
		d := v - m
		s += d * d
	}
	return s
}

// buildTree grows a least-squares regression tree to maxDepth. minLeaf is the
// smallest sample count that still splits.
func buildTree(X [][]float64, y []float64, depth, maxDepth, minLeaf int, rng *rand.Rand) *TreeNode {
	if depth >= maxDepth || len(y) <= minLeaf {
		return &TreeNode{Leaf: true, Value: stat.Mean(y, nil)}
	}

	nFeatures := len(X[0])
	bestFeat := -1
	bestThresh := 0.0
	bestScore := sse(y)
	var bestLeft, bestRight []int

	for f := 0; f < nFeatures; f++ {
		for _, th := range splitCandidates(X, f, rng) {
			var left, right []int
			for i := range X {
				if X[i][f] <= th {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			score := sse(gather(y, left)) + sse(gather(y, right))
			if score < bestScore {
				bestScore = score
				bestFeat = f
				bestThresh = th
				bestLeft, bestRight = left, right
			}
		}
	}

	if bestFeat == -1 {
		return &TreeNode{Leaf: true, Value: stat.Mean(y, nil)}
	}

	left := buildTree(gatherRows(X, bestLeft), gather(y, bestLeft), depth+1, maxDepth, minLeaf, rng)
	right := buildTree(gatherRows(X, bestRight), gather(y, bestRight), depth+1, maxDepth, minLeaf, rng)
	return &TreeNode{Feature: bestFeat, Thresh: bestThresh, Left: left, Right: right}
}

// splitCandidates returns midpoints between consecutive distinct values of
// one feature, subsampled with rng when there are too many.
func splitCandidates(X [][]float64, feature int, rng *rand.Rand) []float64 {
	vals := make([]float64, len(X))
	for i := range X {
		vals[i] = X[i][feature]
	}
	sort.Float64s(vals)

	var mids []float64
	for i := 1; i < len(vals); i++ {
		if vals[i] != vals[i-1] {
			mids = append(mids, (vals[i]+vals[i-1])/2)
		}
	}
	if len(mids) <= maxSplitCandidates {
		return mids
	}

	picked := make([]float64, maxSplitCandidates)
	perm := rng.Perm(len(mids))
	for i := 0; i < maxSplitCandidates; i++ {
		picked[i] = mids[perm[i]]
	}
	sort.Float64s(picked)
	return picked
}

func gather(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func gatherRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}
