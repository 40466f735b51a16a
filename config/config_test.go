package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model.NEstimators != 100 || c.Webapp.Port != 8082 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Tracking.Experiment != "Churn Prediction" || c.Tracking.ElasticsearchIndex != "mlflow-metrics" {
		t.Fatalf("unexpected tracking defaults: %+v", c.Tracking)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "model:\n  n_estimators: 25\n  fit_scope: train\nhttp:\n  port: 9090\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model.NEstimators != 25 || c.Model.FitScope != "train" || c.Http.Port != 9090 {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.Model.Path != "churn_model.json" {
		t.Fatalf("unset keys should keep defaults, got %q", c.Model.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"MLFLOW_TRACKING_URI": "http://mlflow:5000",
		"ELASTICSEARCH_HOST":  "http://es:9200",
		"DATABASE_URL":        "postgres://churn@db/churn",
		"CHURN_MODEL_PATH":    "/models/churn.json",
	}
	c := Default()
	c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if c.Tracking.MLflowURI != env["MLFLOW_TRACKING_URI"] ||
		c.Tracking.ElasticsearchHost != env["ELASTICSEARCH_HOST"] ||
		c.Database.PostgresURL != env["DATABASE_URL"] ||
		c.Model.Path != env["CHURN_MODEL_PATH"] {
		t.Fatalf("env not applied: %+v", c)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "estimators", mutate: func(c *Config) { c.Model.NEstimators = 0 }, field: "NEstimators"},
		{name: "port", mutate: func(c *Config) { c.Http.Port = 70000 }, field: "Port"},
		{name: "fit scope", mutate: func(c *Config) { c.Model.FitScope = "test" }, field: "FitScope"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, field: "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("expected error naming %s, got %v", tt.field, err)
			}
		})
	}
}
