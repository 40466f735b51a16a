package ml

import "fmt"

// Classifier is a fitted model. Predict fails with ErrInvalidInput when the
// vector width does not match the width the model was trained on.
type Classifier interface {
	Predict(features []float64) (int, float64, error)
	PredictBatch(X [][]float64) ([]int, error)
	NumFeatures() int
}

// FeatureNamer is implemented by models that remember the column name of
// each feature position.
type FeatureNamer interface {
	FeatureNames() []string
}

// MLModel is a classifier that can be fit in place.
type MLModel interface {
	Classifier
	Train(features [][]float64, labels []int) error
}

var (
	_ MLModel      = (*DecisionTree)(nil)
	_ MLModel      = (*RandomForest)(nil)
	_ FeatureNamer = (*DecisionTree)(nil)
	_ FeatureNamer = (*RandomForest)(nil)
)

func predictBatch(c Classifier, X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, row := range X {
		label, _, err := c.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

func validateTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return fmt.Errorf("%w: features or labels empty", ErrTraining)
	}
	if len(features) != len(labels) {
		return fmt.Errorf("%w: %d feature rows but %d labels", ErrTraining, len(features), len(labels))
	}
	width := len(features[0])
	if width == 0 {
		return fmt.Errorf("%w: feature rows are empty", ErrTraining)
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, expected %d", ErrTraining, i, len(row), width)
		}
	}
	return nil
}
