package ml

import "fmt"

// Metrics are binary classification scores for the positive (churned) class.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// Map keys the scores the way the tracking sinks expect them.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1_score":  m.F1,
	}
}

// EvaluateModel predicts every row of XTest and scores the result against
// yTest. Inputs are not modified.
func EvaluateModel(model Classifier, XTest [][]float64, yTest []int) (Metrics, error) {
	if len(XTest) == 0 {
		return Metrics{}, fmt.Errorf("%w: empty evaluation set", ErrInvalidInput)
	}
	if len(XTest) != len(yTest) {
		return Metrics{}, fmt.Errorf("%w: %d rows but %d labels", ErrInvalidInput, len(XTest), len(yTest))
	}
	yPred, err := model.PredictBatch(XTest)
	if err != nil {
		return Metrics{}, err
	}
	return Score(yTest, yPred), nil
}

// Score computes accuracy, precision, recall and F1 with label 1 as the
// positive class. A zero denominator yields 0 for that score. yTrue and yPred
// must have the same length.
func Score(yTrue, yPred []int) Metrics {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return Metrics{}
	}
	correct, tp, fp, fn := 0, 0, 0, 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1 && yTrue[i] != 1:
			fp++
		case yPred[i] != 1 && yTrue[i] == 1:
			fn++
		}
	}

	m := Metrics{Accuracy: float64(correct) / float64(len(yTrue))}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
