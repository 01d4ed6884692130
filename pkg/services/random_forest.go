package services

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// TreeNode 回帰木のノード。Feature < 0 は葉
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// RegressionTree 二乗誤差を基準に分割するCART回帰木（ノードはフラット配列で保持）
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Predict walks from the root; x[f] <= threshold goes left.
func (t *RegressionTree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks that the flat node array forms a tree reachable from the root.
func (t *RegressionTree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		// 子ノードは必ず親より後ろに格納されるので循環しない
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// treeBuilder 1本の木を学習する作業領域
type treeBuilder struct {
	X        [][]float64
	y        []float64
	maxDepth int
	nodes    []TreeNode
}

func (b *treeBuilder) build(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: -1, Value: b.mean(idx)})

	if len(idx) < 2 || (b.maxDepth > 0 && depth >= b.maxDepth) || b.pure(idx) {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

func (b *treeBuilder) mean(idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit は左右の二乗誤差和が最小になる (特徴量, 閾値) を探す。
// SSE_l + SSE_r の最小化は sum_l²/n_l + sum_r²/n_r の最大化と同値。
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}

	bestScore := total * total / float64(n)
	bestFeature, bestThreshold := -1, 0.0
	found := false

	order := make([]int, n)
	numFeatures := len(b.X[idx[0]])
	for f := 0; f < numFeatures; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[order[k]]
			cur, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			rightSum := total - leftSum
			score := leftSum*leftSum/nl + rightSum*rightSum/nr
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// RandomForest ブートストラップ標本で学習した回帰木の平均
type RandomForest struct {
	NumTrees int               `json:"num_trees"`
	MaxDepth int               `json:"max_depth"`
	Seed     int64             `json:"seed"`
	Trees    []*RegressionTree `json:"trees"`
}

// NewRandomForest 未学習のランダムフォレストを作成（maxDepth=0 は深さ無制限）
func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{NumTrees: numTrees, MaxDepth: maxDepth, Seed: seed}
}

func (m *RandomForest) ModelType() string { return ModelTypeRandomForest }

// Fit trains the trees concurrently. Each tree owns a seed drawn up front from the
// forest seed, so the fitted forest does not depend on goroutine scheduling.
func (m *RandomForest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("random forest: %d rows, %d targets", len(X), len(y))
	}
	if m.NumTrees <= 0 {
		return fmt.Errorf("random forest: num_trees must be positive, got %d", m.NumTrees)
	}

	master := rand.New(rand.NewSource(m.Seed))
	seeds := make([]int64, m.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*RegressionTree, m.NumTrees)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, len(X))
			for k := range sample {
				sample[k] = rng.Intn(len(X))
			}
			b := &treeBuilder{X: X, y: y, maxDepth: m.MaxDepth}
			b.build(sample, 0)
			trees[i] = &RegressionTree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("random forest: %w", err)
	}
	m.Trees = trees
	return nil
}

func (m *RandomForest) Predict(x []float64) float64 {
	var sum float64
	for _, t := range m.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(m.Trees))
}
