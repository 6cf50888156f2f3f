package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// WorkerRepository provides persistence for the workers table.
type WorkerRepository struct {
	db *sql.DB
}

func NewWorkerRepository(db *sql.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// Save inserts a new worker row and returns its ID.
func (r *WorkerRepository) Save(ctx context.Context, w *domain.Worker) (int64, error) {
	if w.LastActive.IsZero() {
		w.LastActive = w.Started
	}
	query := `INSERT INTO workers (name, started, last_active) VALUES (` + placeholders(1, 3) + `)`
	id, err := insertReturningID(ctx, r.db, query, w.Name, formatDateInDatabase(w.Started), formatDateInDatabase(w.LastActive))
	if err != nil {
		return 0, err
	}
	w.ID = id
	return id, nil
}

// UpdateLastActive sets last_active for the worker id to the provided timestamp.
func (r *WorkerRepository) UpdateLastActive(ctx context.Context, id int64, ts time.Time) error {
	query := `UPDATE workers SET last_active = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	_, err := r.db.ExecContext(ctx, query, formatDateInDatabase(ts), id)
	return err
}

func (r *WorkerRepository) FindByLastActive(ctx context.Context, limit int) ([]*domain.Worker, error) {
	query := `
		SELECT id, name, started, last_active
		FROM workers
		ORDER BY last_active DESC
		LIMIT ` + placeholder(1)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []*domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.ID, &w.Name, &w.Started, &w.LastActive); err != nil {
			return nil, err
		}
		workers = append(workers, &w)
	}
	return workers, rows.Err()
}
