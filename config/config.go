package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Data struct {
		TrainPath string `yaml:"train_path"`
		TestPath  string `yaml:"test_path"`
	} `yaml:"data"`
	Model struct {
		Path        string `yaml:"path" validate:"required"`
		NEstimators int    `yaml:"n_estimators" validate:"min=1"`
		Seed        int64  `yaml:"seed"`
		FitScope    string `yaml:"fit_scope" validate:"oneof=combined train"`
		S3          struct {
			Bucket  string `yaml:"bucket"`
			Prefix  string `yaml:"prefix"`
			Profile string `yaml:"profile"`
		} `yaml:"s3"`
	} `yaml:"model"`
	Database struct {
		Path        string `yaml:"path" validate:"required"`
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"database"`
	Http struct {
		Port int `yaml:"port" validate:"min=1,max=65535"`
	} `yaml:"http"`
	Webapp struct {
		Port int `yaml:"port" validate:"min=1,max=65535"`
	} `yaml:"webapp"`
	Tracking struct {
		Enabled            bool   `yaml:"enabled"`
		MLflowURI          string `yaml:"mlflow_uri" validate:"omitempty,url"`
		Experiment         string `yaml:"experiment" validate:"required"`
		RunName            string `yaml:"run_name"`
		ElasticsearchHost  string `yaml:"elasticsearch_host" validate:"omitempty,url"`
		ElasticsearchIndex string `yaml:"elasticsearch_index" validate:"required"`
	} `yaml:"tracking"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	var c Config
	c.Data.TrainPath = "churn-bigml-80.csv"
	c.Data.TestPath = "churn-bigml-20.csv"
	c.Model.Path = "churn_model.json"
	c.Model.NEstimators = 100
	c.Model.FitScope = "combined"
	c.Database.Path = "churn.db"
	c.Http.Port = 8080
	c.Webapp.Port = 8082
	c.Tracking.Enabled = true
	c.Tracking.MLflowURI = "http://localhost:8090"
	c.Tracking.Experiment = "Churn Prediction"
	c.Tracking.ElasticsearchHost = "http://localhost:9200"
	c.Tracking.ElasticsearchIndex = "mlflow-metrics"
	c.Log.Level = "info"
	return &c
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	config.applyEnv(os.LookupEnv)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("MLFLOW_TRACKING_URI"); ok {
		c.Tracking.MLflowURI = v
	}
	if v, ok := lookup("ELASTICSEARCH_HOST"); ok {
		c.Tracking.ElasticsearchHost = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.Database.PostgresURL = v
	}
	if v, ok := lookup("CHURN_MODEL_PATH"); ok && v != "" {
		c.Model.Path = v
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
