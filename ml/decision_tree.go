package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier using gini impurity. Nodes live in a
// flat slice so the tree serializes as plain JSON; node 0 is the root.
type DecisionTree struct {
	MaxDepth        int   `json:"max_depth"`         // 0 => unlimited
	MinSamplesSplit int   `json:"min_samples_split"` // minimum samples to attempt a split
	MinSamplesLeaf  int   `json:"min_samples_leaf"`  // minimum samples on each side of a split
	MaxFeatures     int   `json:"max_features"`      // 0 => consider every feature
	Seed            int64 `json:"seed"`

	Features int        `json:"n_features"`
	Columns  []string   `json:"feature_names,omitempty"`
	Classes  []int      `json:"classes"`
	Nodes    []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Samples    int       `json:"samples"`
	Value      []float64 `json:"value,omitempty"` // class probabilities, leaves only
	IsLeaf     bool      `json:"is_leaf"`
}

type TreeOption func(*DecisionTree)

func WithMaxDepth(d int) TreeOption        { return func(t *DecisionTree) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) TreeOption { return func(t *DecisionTree) { t.MinSamplesSplit = n } }
func WithMinSamplesLeaf(n int) TreeOption  { return func(t *DecisionTree) { t.MinSamplesLeaf = n } }
func WithMaxFeatures(k int) TreeOption     { return func(t *DecisionTree) { t.MaxFeatures = k } }
func WithTreeSeed(seed int64) TreeOption   { return func(t *DecisionTree) { t.Seed = seed } }

func NewDecisionTree(opts ...TreeOption) *DecisionTree {
	t := &DecisionTree{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Train fits the tree on every row of features.
func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	classes := uniqueLabels(labels)
	sample := make([]int, len(features))
	for i := range sample {
		sample[i] = i
	}
	dt.fit(features, encodeClasses(labels, classes), classes, sample, rand.New(rand.NewSource(dt.Seed)))
	return nil
}

// Predict returns the majority class of the leaf reached by features and
// that class's share of the leaf.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	probs, err := dt.predictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(probs)
	return dt.Classes[best], probs[best], nil
}

func (dt *DecisionTree) PredictBatch(X [][]float64) ([]int, error) {
	return predictBatch(dt, X)
}

func (dt *DecisionTree) NumFeatures() int { return dt.Features }

func (dt *DecisionTree) FeatureNames() []string { return dt.Columns }

func (dt *DecisionTree) predictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, fmt.Errorf("%w: model not trained", ErrInvalidInput)
	}
	if len(features) != dt.Features {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, dt.Features, len(features))
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

// fit grows the tree over sample, a list of row indices that may repeat
// (bootstrap draws). y holds class indices into classes.
func (dt *DecisionTree) fit(X [][]float64, y []int, classes []int, sample []int, rnd *rand.Rand) {
	dt.Features = len(X[0])
	dt.Classes = append([]int(nil), classes...)
	dt.Nodes = dt.Nodes[:0]
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.MinSamplesLeaf < 1 {
		dt.MinSamplesLeaf = 1
	}
	dt.grow(X, y, sample, 0, rnd)
}

func (dt *DecisionTree) grow(X [][]float64, y []int, sample []int, depth int, rnd *rand.Rand) int {
	counts := make([]int, len(dt.Classes))
	for _, i := range sample {
		counts[y[i]]++
	}

	nodeIdx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Samples:    len(sample),
		Value:      countsToProbas(counts),
		IsLeaf:     true,
	})

	if isPure(counts) ||
		len(sample) < dt.MinSamplesSplit ||
		len(sample) < 2*dt.MinSamplesLeaf ||
		(dt.MaxDepth > 0 && depth >= dt.MaxDepth) {
		return nodeIdx
	}

	split, ok := dt.bestSplit(X, y, sample, rnd)
	if !ok {
		return nodeIdx
	}

	left := dt.grow(X, y, split.left, depth+1, rnd)
	right := dt.grow(X, y, split.right, depth+1, rnd)
	dt.Nodes[nodeIdx] = TreeNode{
		FeatureIdx: split.feature,
		Threshold:  split.threshold,
		LeftChild:  left,
		RightChild: right,
		Samples:    len(sample),
	}
	return nodeIdx
}

type treeSplit struct {
	feature   int
	threshold float64
	impurity  float64
	left      []int
	right     []int
}

// bestSplit visits features in random order and scores every midpoint
// between distinct sorted values. Constant features do not count towards
// MaxFeatures, so a split is found whenever any feature varies.
func (dt *DecisionTree) bestSplit(X [][]float64, y []int, sample []int, rnd *rand.Rand) (treeSplit, bool) {
	p := dt.Features
	limit := dt.MaxFeatures
	if limit <= 0 || limit > p {
		limit = p
	}

	best := treeSplit{feature: -1}
	nClasses := len(dt.Classes)
	sorted := make([]int, len(sample))
	leftCounts := make([]int, nClasses)
	rightCounts := make([]int, nClasses)

	visited := 0
	for _, f := range rnd.Perm(p) {
		if visited >= limit {
			break
		}
		copy(sorted, sample)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })
		if X[sorted[0]][f] == X[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = 0
		}
		for _, i := range sorted {
			rightCounts[y[i]]++
		}

		n := len(sorted)
		for s := 1; s < n; s++ {
			moved := y[sorted[s-1]]
			leftCounts[moved]++
			rightCounts[moved]--

			lo, hi := X[sorted[s-1]][f], X[sorted[s]][f]
			if lo == hi {
				continue
			}
			if s < dt.MinSamplesLeaf || n-s < dt.MinSamplesLeaf {
				continue
			}
			impurity := (float64(s)*gini(leftCounts) + float64(n-s)*gini(rightCounts)) / float64(n)
			if best.feature == -1 || impurity < best.impurity {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = treeSplit{feature: f, threshold: threshold, impurity: impurity}
			}
		}
	}
	if best.feature == -1 {
		return best, false
	}

	for _, i := range sample {
		if X[i][best.feature] <= best.threshold {
			best.left = append(best.left, i)
		} else {
			best.right = append(best.right, i)
		}
	}
	return best, true
}

func gini(counts []int) float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func countsToProbas(counts []int) []float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	p := make([]float64, len(counts))
	if n == 0 {
		return p
	}
	for i, c := range counts {
		p[i] = float64(c) / float64(n)
	}
	return p
}

// argmax returns the first index holding the maximum.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func uniqueLabels(labels []int) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0, 2)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

func encodeClasses(labels []int, classes []int) []int {
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = index[l]
	}
	return out
}
