package db

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PredictionRepository writes form predictions to PostgreSQL.
type PredictionRepository struct {
	pool *pgxpool.Pool
}

// NewPredictionRepository connects to databaseURL and makes sure the
// predictions table exists.
func NewPredictionRepository(ctx context.Context, databaseURL string) (*PredictionRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo := &PredictionRepository{pool: pool}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PredictionRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS predictions (
            id SERIAL PRIMARY KEY,
            features TEXT NOT NULL,
            prediction INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`)
	if err != nil {
		return fmt.Errorf("create predictions table: %w", err)
	}
	return nil
}

func (r *PredictionRepository) SavePrediction(ctx context.Context, features []float64, prediction int) error {
	encoded, err := json.Marshal(features)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO predictions (features, prediction) VALUES ($1, $2)`,
		string(encoded), prediction)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepository) Close() {
	r.pool.Close()
}
