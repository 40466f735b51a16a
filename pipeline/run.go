// Package pipeline wires the preparation, training, evaluation and storage
// steps into train and evaluate runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"churnpredict/ml"
	"churnpredict/tracking"

	"go.uber.org/zap"
)

type Options struct {
	Prepare     ml.PrepareOptions
	NEstimators int   // 0 keeps the forest default
	Seed        int64 // 0 seeds from the clock
}

// Runner executes pipeline runs. Sink may be nil.
type Runner struct {
	Store   ml.ModelStore
	Sink    tracking.Sink
	Logger  *zap.Logger
	Options Options
}

type TrainRequest struct {
	TrainPath string
	TestPath  string
	ModelKey  string
}

type EvaluateRequest struct {
	ModelKey string
	TestPath string
}

// Result describes a finished run.
type Result struct {
	Model    ml.Classifier
	Metrics  ml.Metrics
	Features []string
	ModelKey string
	Params   map[string]string
	Duration time.Duration
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) prepareOptions() ml.PrepareOptions {
	opts := r.Options.Prepare
	if opts.Policy.Version == "" {
		opts.Policy = ml.ChurnSchema()
	}
	return opts
}

func (r *Runner) forestOptions() []ml.ForestOption {
	var opts []ml.ForestOption
	if r.Options.NEstimators > 0 {
		opts = append(opts, ml.WithNEstimators(r.Options.NEstimators))
	}
	if r.Options.Seed != 0 {
		opts = append(opts, ml.WithSeed(r.Options.Seed))
	}
	return opts
}

// Train prepares both files, fits a forest, scores it on the test partition,
// stores it under req.ModelKey and records the run.
func (r *Runner) Train(ctx context.Context, req TrainRequest) (*Result, error) {
	if req.TrainPath == "" || req.TestPath == "" || req.ModelKey == "" {
		return nil, fmt.Errorf("%w: train path, test path and model key are required", ml.ErrInvalidInput)
	}
	log := r.logger().With(zap.String("mode", "train"), zap.String("model_key", req.ModelKey))
	start := time.Now()

	prepOpts := r.prepareOptions()
	data, err := ml.PrepareDataWith(req.TrainPath, req.TestPath, prepOpts)
	if err != nil {
		return nil, fmt.Errorf("prepare data: %w", err)
	}
	log.Info("data prepared",
		zap.Int("train_rows", len(data.XTrain)),
		zap.Int("test_rows", len(data.XTest)),
		zap.Int("features", len(data.Features)),
		zap.Stringer("fit_scope", prepOpts.FitScope))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := ml.TrainModelWith(data.XTrain, data.YTrain, r.forestOptions()...)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	model.Columns = data.Features
	log.Info("model trained", zap.Int("n_estimators", model.NEstimators), zap.Duration("elapsed", time.Since(start)))

	metrics, err := ml.EvaluateModel(model, data.XTest, data.YTest)
	if err != nil {
		return nil, fmt.Errorf("evaluate model: %w", err)
	}
	if err := r.Store.Store(ctx, model, req.ModelKey); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	params := map[string]string{
		"mode":           "train",
		"train_path":     req.TrainPath,
		"test_path":      req.TestPath,
		"model_key":      req.ModelKey,
		"schema_version": data.SchemaVersion,
		"n_estimators":   strconv.Itoa(model.NEstimators),
		"fit_scope":      prepOpts.FitScope.String(),
		"train_rows":     strconv.Itoa(len(data.XTrain)),
	}
	res := &Result{
		Model:    model,
		Metrics:  metrics,
		Features: data.Features,
		ModelKey: req.ModelKey,
		Params:   params,
		Duration: time.Since(start),
	}
	r.record(ctx, log, params, metrics)
	logMetrics(log, "training finished", res)
	return res, nil
}

// Evaluate loads a stored model and scores it on a single file. The file is
// prepared against itself, so encoders are fit on the evaluation data only.
func (r *Runner) Evaluate(ctx context.Context, req EvaluateRequest) (*Result, error) {
	if req.TestPath == "" || req.ModelKey == "" {
		return nil, fmt.Errorf("%w: test path and model key are required", ml.ErrInvalidInput)
	}
	log := r.logger().With(zap.String("mode", "evaluate"), zap.String("model_key", req.ModelKey))
	start := time.Now()

	model, err := r.Store.Retrieve(ctx, req.ModelKey)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	data, err := ml.PrepareDataWith(req.TestPath, req.TestPath, r.prepareOptions())
	if err != nil {
		return nil, fmt.Errorf("prepare data: %w", err)
	}
	if named, ok := model.(ml.FeatureNamer); ok {
		if err := checkFeatureOrder(named.FeatureNames(), data.Features); err != nil {
			return nil, err
		}
	}
	metrics, err := ml.EvaluateModel(model, data.XTest, data.YTest)
	if err != nil {
		return nil, fmt.Errorf("evaluate model: %w", err)
	}

	params := map[string]string{
		"mode":           "evaluate",
		"test_path":      req.TestPath,
		"model_key":      req.ModelKey,
		"schema_version": data.SchemaVersion,
		"train_rows":     "0",
	}
	if rf, ok := model.(*ml.RandomForest); ok {
		params["n_estimators"] = strconv.Itoa(rf.NEstimators)
	}
	res := &Result{
		Model:    model,
		Metrics:  metrics,
		Features: data.Features,
		ModelKey: req.ModelKey,
		Params:   params,
		Duration: time.Since(start),
	}
	r.record(ctx, log, params, metrics)
	logMetrics(log, "evaluation finished", res)
	return res, nil
}

// record hands the run to the sink. The model already exists at this point,
// so a sink failure is logged rather than returned.
func (r *Runner) record(ctx context.Context, log *zap.Logger, params map[string]string, metrics ml.Metrics) {
	sink := r.Sink
	if sink == nil {
		sink = tracking.Nop
	}
	if err := sink.Record(ctx, params, metrics.Map()); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}

func checkFeatureOrder(model, data []string) error {
	if len(model) == 0 {
		return nil
	}
	if len(model) != len(data) {
		return fmt.Errorf("%w: model expects %d features, data has %d", ml.ErrSchema, len(model), len(data))
	}
	for i := range model {
		if model[i] != data[i] {
			return fmt.Errorf("%w: feature %d is %q in the model but %q in the data", ml.ErrSchema, i, model[i], data[i])
		}
	}
	return nil
}

func logMetrics(log *zap.Logger, msg string, res *Result) {
	log.Info(msg,
		zap.Float64("accuracy", res.Metrics.Accuracy),
		zap.Float64("precision", res.Metrics.Precision),
		zap.Float64("recall", res.Metrics.Recall),
		zap.Float64("f1_score", res.Metrics.F1),
		zap.Duration("elapsed", res.Duration))
}

// IsUserError reports whether err was caused by bad input rather than by the
// environment.
func IsUserError(err error) bool {
	return errors.Is(err, ml.ErrInvalidInput) ||
		errors.Is(err, ml.ErrSchema) ||
		errors.Is(err, ml.ErrDataType) ||
		errors.Is(err, ml.ErrNotFound)
}
