package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"churnpredict/config"
	"churnpredict/db"
	"churnpredict/logging"
	"churnpredict/pipeline"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "train_model",
	Short: "Train or evaluate the churn random forest",
	Long: `train_model prepares the churn CSV files, trains a random forest and reports
accuracy, precision, recall and F1 on the test file.

  train:     train_model --train_path train.csv --test_path test.csv [--save_model churn_model.json]
  evaluate:  train_model --load_model churn_model.json --test_path test.csv`,
	SilenceUsage: true,
	RunE:         runPipeline,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the local training log",
	RunE:  runHistory,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.Flags().String("train_path", "", "training CSV")
	rootCmd.Flags().String("test_path", "", "test CSV")
	rootCmd.Flags().String("save_model", "churn_model.json", "where to store the trained model")
	rootCmd.Flags().String("load_model", "", "evaluate this stored model instead of training")
	rootCmd.Flags().Int("n_estimators", 0, "number of trees (default from config)")
	rootCmd.Flags().Int64("seed", 0, "random seed, 0 seeds from the clock")

	viper.BindPFlag("data.train_path", rootCmd.Flags().Lookup("train_path"))
	viper.BindPFlag("data.test_path", rootCmd.Flags().Lookup("test_path"))
	viper.BindPFlag("model.path", rootCmd.Flags().Lookup("save_model"))
	viper.BindPFlag("model.load", rootCmd.Flags().Lookup("load_model"))
	viper.BindPFlag("model.n_estimators", rootCmd.Flags().Lookup("n_estimators"))
	viper.BindPFlag("model.seed", rootCmd.Flags().Lookup("seed"))

	rootCmd.AddCommand(historyCmd)
}

func initConfig() {
	viper.SetEnvPrefix("churn")
	viper.AutomaticEnv()
}

// loadConfig reads the YAML config and lays explicitly set flags over it.
// Data paths only come from the file when --config is given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfgFile == "" {
		cfg.Data.TrainPath, cfg.Data.TestPath = "", ""
	}
	if viper.IsSet("data.train_path") {
		cfg.Data.TrainPath = viper.GetString("data.train_path")
	}
	if viper.IsSet("data.test_path") {
		cfg.Data.TestPath = viper.GetString("data.test_path")
	}
	if viper.IsSet("model.path") {
		cfg.Model.Path = viper.GetString("model.path")
	}
	if viper.IsSet("model.n_estimators") {
		cfg.Model.NEstimators = viper.GetInt("model.n_estimators")
	}
	if viper.IsSet("model.seed") {
		cfg.Model.Seed = viper.GetInt64("model.seed")
	}
	return cfg, cfg.Validate()
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := db.InitDB(cfg.Database.Path); err != nil {
		return fmt.Errorf("open training log: %w", err)
	}
	defer db.CloseDB()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	store, err := pipeline.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	runner := &pipeline.Runner{
		Store:   store,
		Sink:    pipeline.NewSink(cfg, logger),
		Logger:  logger,
		Options: pipeline.OptionsFrom(cfg),
	}

	var res *pipeline.Result
	loadModel := viper.GetString("model.load")
	switch {
	case loadModel != "" && cfg.Data.TestPath != "":
		res, err = runner.Evaluate(ctx, pipeline.EvaluateRequest{ModelKey: loadModel, TestPath: cfg.Data.TestPath})
	case cfg.Data.TrainPath != "" && cfg.Data.TestPath != "":
		res, err = runner.Train(ctx, pipeline.TrainRequest{
			TrainPath: cfg.Data.TrainPath,
			TestPath:  cfg.Data.TestPath,
			ModelKey:  cfg.Model.Path,
		})
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "model saved to %s\n", cfg.Model.Path)
		}
	default:
		return errors.New("provide --train_path and --test_path to train, or --load_model and --test_path to evaluate")
	}
	if err != nil {
		logger.Error("pipeline run failed", zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "accuracy:  %.4f\n", res.Metrics.Accuracy)
	fmt.Fprintf(out, "precision: %.4f\n", res.Metrics.Precision)
	fmt.Fprintf(out, "recall:    %.4f\n", res.Metrics.Recall)
	fmt.Fprintf(out, "f1_score:  %.4f\n", res.Metrics.F1)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := db.InitDB(cfg.Database.Path); err != nil {
		return err
	}
	defer db.CloseDB()

	logs, err := db.LoadTrainingLog()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMODE\tMODEL\tACCURACY\tPRECISION\tRECALL\tF1")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\n",
			l.TrainedAt.Format(time.RFC3339), l.Mode, l.ModelKey, l.Accuracy, l.Precision, l.Recall, l.F1)
	}
	return w.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
