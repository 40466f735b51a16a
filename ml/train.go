package ml

// TrainModel fits a random forest with default hyperparameters. No search is
// performed; use TrainModelWith to override the defaults explicitly.
func TrainModel(XTrain [][]float64, yTrain []int) (*RandomForest, error) {
	return TrainModelWith(XTrain, yTrain)
}

func TrainModelWith(XTrain [][]float64, yTrain []int, opts ...ForestOption) (*RandomForest, error) {
	model := NewRandomForest(opts...)
	if err := model.Train(XTrain, yTrain); err != nil {
		return nil, err
	}
	return model, nil
}
