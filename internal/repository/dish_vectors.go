// Package repository persists the embedding cache to Postgres with
// pgvector, giving retrieval an ANN-capable backend and surviving restarts
// between export runs.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/platefeed/recsys/internal/models"
)

// DishVectorRepository handles data access for the dish_vectors table:
//
//	CREATE EXTENSION IF NOT EXISTS vector;
//	CREATE TABLE IF NOT EXISTS dish_vectors (
//	    dish_id       text NOT NULL,
//	    store_id      text NOT NULL,
//	    model_version text NOT NULL,
//	    embedding     vector NOT NULL,
//	    created_at    timestamptz NOT NULL,
//	    updated_at    timestamptz NOT NULL,
//	    PRIMARY KEY (dish_id, model_version)
//	);
type DishVectorRepository struct {
	db *pgxpool.Pool
}

// NewDishVectorRepository creates a new dish vector repository.
func NewDishVectorRepository(db *pgxpool.Pool) *DishVectorRepository {
	return &DishVectorRepository{db: db}
}

// Upsert inserts or updates one dish vector for a model version.
func (r *DishVectorRepository) Upsert(ctx context.Context, dishID, storeID, modelVersion string, vector []float32) error {
	now := time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO dish_vectors (dish_id, store_id, model_version, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (dish_id, model_version)
		DO UPDATE SET store_id = EXCLUDED.store_id, embedding = EXCLUDED.embedding, updated_at = $5`,
		dishID, storeID, modelVersion, pgvector.NewVector(vector), now,
	)
	if err != nil {
		return fmt.Errorf("dish vector upsert: %w", err)
	}

	return nil
}

// UpsertBatch writes a full rebuild's vectors in one round trip per batch
// and removes rows for dishes that left the catalog.
func (r *DishVectorRepository) UpsertBatch(ctx context.Context, modelVersion string, vectors map[string][]float32, storeIDs map[string]string) error {
	now := time.Now()
	batch := &pgx.Batch{}

	for dishID, vec := range vectors {
		batch.Queue(`
			INSERT INTO dish_vectors (dish_id, store_id, model_version, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (dish_id, model_version)
			DO UPDATE SET store_id = EXCLUDED.store_id, embedding = EXCLUDED.embedding, updated_at = $5`,
			dishID, storeIDs[dishID], modelVersion, pgvector.NewVector(vec), now,
		)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("dish vector batch upsert: %w", err)
	}

	if _, err := r.db.Exec(ctx,
		`DELETE FROM dish_vectors WHERE model_version != $1`, modelVersion,
	); err != nil {
		return fmt.Errorf("dish vector prune: %w", err)
	}

	return nil
}

// Nearest returns dish ids and similarity scores for the nearest neighbors
// to queryVector under the given model version. Uses cosine distance
// (<=>); score = 1 - distance, so unit vectors land in [-1, 1] like the
// in-memory scan. excludeDishID and storeID are optional filters.
func (r *DishVectorRepository) Nearest(
	ctx context.Context, modelVersion string, queryVector []float32, limit int, storeID, excludeDishID string,
) ([]models.ScoredDish, error) {
	queryVec := pgvector.NewVector(queryVector)

	rows, err := r.db.Query(ctx, `
		SELECT dish_id, store_id, (1 - (embedding <=> $1)) AS score
		FROM dish_vectors
		WHERE model_version = $2
		  AND ($3 = '' OR store_id = $3)
		  AND ($4 = '' OR dish_id != $4)
		ORDER BY embedding <=> $1
		LIMIT $5`, queryVec, modelVersion, storeID, excludeDishID, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest dish vectors: %w", err)
	}

	defer rows.Close()

	var results []models.ScoredDish

	for rows.Next() {
		var row models.ScoredDish
		if err := rows.Scan(&row.DishID, &row.StoreID, &row.Score); err != nil {
			return nil, fmt.Errorf("scan scored dish: %w", err)
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest dishes: %w", err)
	}

	return results, nil
}

// Count reports how many vectors are stored for a model version.
func (r *DishVectorRepository) Count(ctx context.Context, modelVersion string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM dish_vectors WHERE model_version = $1`, modelVersion,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dish vectors: %w", err)
	}

	return n, nil
}
