package ml

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RandomForest is a bagged ensemble of DecisionTrees for binary churn labels.
type RandomForest struct {
	// Hyperparameters
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"` // 0 => sqrt(n_features)
	Bootstrap       bool  `json:"bootstrap"`
	Seed            int64 `json:"seed"`

	// Fitted state
	Features int             `json:"n_features"`
	Columns  []string        `json:"feature_names,omitempty"`
	Classes  []int           `json:"classes"`
	Trees    []*DecisionTree `json:"trees"`
}

type ForestOption func(*RandomForest)

func WithNEstimators(n int) ForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) ForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithSeed(seed int64) ForestOption   { return func(rf *RandomForest) { rf.Seed = seed } }
func WithForestMaxDepth(d int) ForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}
func WithForestMaxFeatures(k int) ForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = k }
}

// NewRandomForest returns an untuned forest: 100 fully grown trees on
// bootstrap samples, sqrt(n_features) candidates per split.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     0,
		Bootstrap:       true,
		Seed:            time.Now().UnixNano(),
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Train fits every tree in turn. Labels must be 0 or 1.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	for i, l := range labels {
		if l != 0 && l != 1 {
			return fmt.Errorf("%w: label %d at row %d is not 0 or 1", ErrTraining, l, i)
		}
	}
	if rf.NEstimators <= 0 {
		return fmt.Errorf("%w: n_estimators must be positive, got %d", ErrTraining, rf.NEstimators)
	}

	n := len(features)
	rf.Features = len(features[0])
	rf.Classes = uniqueLabels(labels)
	y := encodeClasses(labels, rf.Classes)

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(rf.Features)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	rnd := rand.New(rand.NewSource(rf.Seed))
	trees := make([]*DecisionTree, rf.NEstimators)
	for t := range trees {
		treeSeed := rnd.Int63()
		treeRand := rand.New(rand.NewSource(treeSeed))

		// Bootstrap sampling: an index slice, not a copy of the data.
		sample := make([]int, n)
		for j := range sample {
			if rf.Bootstrap {
				sample[j] = treeRand.Intn(n)
			} else {
				sample[j] = j
			}
		}

		tree := NewDecisionTree(
			WithMaxDepth(rf.MaxDepth),
			WithMinSamplesSplit(rf.MinSamplesSplit),
			WithMinSamplesLeaf(rf.MinSamplesLeaf),
			WithMaxFeatures(maxFeatures),
			WithTreeSeed(treeSeed),
		)
		tree.fit(features, y, rf.Classes, sample, treeRand)
		trees[t] = tree
	}
	rf.Trees = trees
	return nil
}

// Predict averages the class probabilities of all trees and returns the most
// probable label with its averaged probability. Ties go to the lower label.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	probs, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(probs)
	return rf.Classes[best], probs[best], nil
}

// PredictProba returns the averaged class probabilities, aligned with Classes.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, fmt.Errorf("%w: model not trained", ErrInvalidInput)
	}
	if len(features) != rf.Features {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, rf.Features, len(features))
	}
	avg := make([]float64, len(rf.Classes))
	for _, tree := range rf.Trees {
		probs, err := tree.predictProba(features)
		if err != nil {
			return nil, err
		}
		for c, p := range probs {
			avg[c] += p
		}
	}
	for c := range avg {
		avg[c] /= float64(len(rf.Trees))
	}
	return avg, nil
}

func (rf *RandomForest) PredictBatch(X [][]float64) ([]int, error) {
	return predictBatch(rf, X)
}

func (rf *RandomForest) NumFeatures() int { return rf.Features }

func (rf *RandomForest) FeatureNames() []string { return rf.Columns }
