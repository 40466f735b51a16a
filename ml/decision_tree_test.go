package ml

import (
	"errors"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree(WithTreeSeed(1))
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected confidence 1 from a pure leaf, got %v", confidence)
	}

	label, _, err = model.Predict([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 1 {
		t.Fatalf("expected label 1, got %d", label)
	}
}

func TestDecisionTreeChildrenFollowParent(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	labels := []int{0, 1, 0, 1, 0, 1}

	model := NewDecisionTree()
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, node := range model.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.RightChild <= i || node.RightChild >= len(model.Nodes) {
			t.Fatalf("node %d has children %d/%d", i, node.LeftChild, node.RightChild)
		}
	}
	if err := model.validate(); err != nil {
		t.Fatalf("trained tree failed validation: %v", err)
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	labels := []int{0, 1, 0, 1}

	model := NewDecisionTree(WithMaxDepth(1))
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Nodes) > 3 {
		t.Fatalf("depth-1 tree should have at most 3 nodes, got %d", len(model.Nodes))
	}
}

func TestDecisionTreeRejectsBadInput(t *testing.T) {
	model := NewDecisionTree()
	if _, _, err := model.Predict([]float64{1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput before training, got %v", err)
	}
	if err := model.Train(nil, nil); !errors.Is(err, ErrTraining) {
		t.Fatalf("expected ErrTraining for empty input, got %v", err)
	}
	if err := model.Train([][]float64{{1, 2}, {3}}, []int{0, 1}); !errors.Is(err, ErrTraining) {
		t.Fatalf("expected ErrTraining for ragged rows, got %v", err)
	}

	if err := model.Train([][]float64{{1, 2}, {3, 4}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := model.Predict([]float64{1, 2, 3}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for width mismatch, got %v", err)
	}
}

func TestModelsFitInPlace(t *testing.T) {
	X, y := syntheticSet(40, 3, 21)
	models := map[string]MLModel{
		"decision tree": NewDecisionTree(WithTreeSeed(1)),
		"random forest": NewRandomForest(WithSeed(1), WithNEstimators(5)),
	}
	for name, model := range models {
		t.Run(name, func(t *testing.T) {
			if err := model.Train(X, y); err != nil {
				t.Fatalf("train: %v", err)
			}
			if model.NumFeatures() != 3 {
				t.Fatalf("expected 3 features, got %d", model.NumFeatures())
			}
			preds, err := model.PredictBatch(X)
			if err != nil {
				t.Fatalf("predict: %v", err)
			}
			if len(preds) != len(X) {
				t.Fatalf("expected %d predictions, got %d", len(X), len(preds))
			}
			if err := model.Train(nil, nil); !errors.Is(err, ErrTraining) {
				t.Fatalf("expected ErrTraining, got %v", err)
			}
		})
	}
}
