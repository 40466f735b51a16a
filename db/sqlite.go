package db

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB opens the SQLite database at path and creates the tables.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        mode VARCHAR(20),
        model_key TEXT,
        schema_version VARCHAR(50),
        train_path TEXT,
        test_path TEXT,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1_score REAL,
        data_points INTEGER,
        trained_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        features TEXT NOT NULL,
        prediction INTEGER NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

	_, err = database.Exec(query)
	return err
}

// CloseDB closes the database opened by InitDB.
func CloseDB() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

type TrainingLog struct {
	Mode          string    `json:"mode"`
	ModelKey      string    `json:"model_key"`
	SchemaVersion string    `json:"schema_version"`
	TrainPath     string    `json:"train_path"`
	TestPath      string    `json:"test_path"`
	Accuracy      float64   `json:"accuracy"`
	Precision     float64   `json:"precision"`
	Recall        float64   `json:"recall"`
	F1            float64   `json:"f1_score"`
	DataPoints    int       `json:"data_points"`
	TrainedAt     time.Time `json:"trained_at"`
}

// TrainingLogSink records pipeline runs into training_log.
type TrainingLogSink struct{}

func (TrainingLogSink) Record(ctx context.Context, params map[string]string, metrics map[string]float64) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	dataPoints, _ := strconv.Atoi(params["train_rows"])
	_, err := database.ExecContext(ctx, `
        INSERT INTO training_log (
            mode, model_key, schema_version, train_path, test_path,
            accuracy, precision, recall, f1_score, data_points, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		params["mode"],
		params["model_key"],
		params["schema_version"],
		params["train_path"],
		params["test_path"],
		metrics["accuracy"],
		metrics["precision"],
		metrics["recall"],
		metrics["f1_score"],
		dataPoints,
		time.Now().UTC(),
	)
	return err
}

// LoadTrainingLog returns the recorded runs, newest first.
func LoadTrainingLog() ([]TrainingLog, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT mode, model_key, schema_version, train_path, test_path,
               accuracy, precision, recall, f1_score, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.Mode, &log.ModelKey, &log.SchemaVersion, &log.TrainPath, &log.TestPath,
			&log.Accuracy, &log.Precision, &log.Recall, &log.F1, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// PredictionLog stores form predictions in the SQLite predictions table.
type PredictionLog struct{}

func (PredictionLog) SavePrediction(ctx context.Context, features []float64, prediction int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return err
	}
	_, err = database.ExecContext(ctx,
		`INSERT INTO predictions (features, prediction, created_at) VALUES (?, ?, ?)`,
		string(encoded), prediction, time.Now().UTC())
	return err
}

type Prediction struct {
	Features   []float64 `json:"features"`
	Prediction int       `json:"prediction"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentPredictions returns up to limit logged predictions, newest first.
func RecentPredictions(limit int) ([]Prediction, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT features, prediction, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		var raw string
		if err := rows.Scan(&raw, &p.Prediction, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &p.Features); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
