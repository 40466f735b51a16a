package pipeline

import (
	"context"

	"churnpredict/config"
	"churnpredict/db"
	"churnpredict/ml"
	"churnpredict/tracking"

	"go.uber.org/zap"
)

// NewSink builds the tracking sinks named in cfg. The SQLite training log is
// always included; it must be opened with db.InitDB first. A remote sink
// that cannot be constructed is skipped with a warning.
func NewSink(cfg *config.Config, logger *zap.Logger) tracking.Sink {
	sinks := []tracking.Sink{db.TrainingLogSink{}}
	if !cfg.Tracking.Enabled {
		return tracking.Multi(sinks...)
	}
	if cfg.Tracking.MLflowURI != "" {
		var opts []tracking.MLflowOption
		if cfg.Tracking.RunName != "" {
			opts = append(opts, tracking.WithRunName(cfg.Tracking.RunName))
		}
		sinks = append(sinks, tracking.NewMLflowSink(cfg.Tracking.MLflowURI, cfg.Tracking.Experiment, opts...))
	}
	if cfg.Tracking.ElasticsearchHost != "" {
		es, err := tracking.NewElasticSink(cfg.Tracking.ElasticsearchHost, cfg.Tracking.ElasticsearchIndex)
		if err != nil {
			logger.Warn("elasticsearch sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, es)
		}
	}
	return tracking.Multi(sinks...)
}

// NewStore returns an S3 store when a bucket is configured and a local file
// store otherwise.
func NewStore(ctx context.Context, cfg *config.Config) (ml.ModelStore, error) {
	if cfg.Model.S3.Bucket == "" {
		return ml.NewFileStore(""), nil
	}
	store, err := ml.NewS3StoreFromEnv(ctx, cfg.Model.S3.Bucket, cfg.Model.S3.Prefix, cfg.Model.S3.Profile)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OptionsFrom maps the model section of cfg to runner options.
func OptionsFrom(cfg *config.Config) Options {
	prep := ml.DefaultPrepareOptions()
	if cfg.Model.FitScope == "train" {
		prep.FitScope = ml.FitTrainOnly
	}
	return Options{
		Prepare:     prep,
		NEstimators: cfg.Model.NEstimators,
		Seed:        cfg.Model.Seed,
	}
}
