package database

import (
	"context"
	"fmt"
	"time"

	"dispatchboard/internal/models"
)

// AppendMutation persists an offline mutation immediately. Order is the
// insertion order; the flush pass replays oldest first.
func (db *DB) AppendMutation(ctx context.Context, m *models.PendingMutation) error {
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now()
	}

	query := `INSERT INTO pending_mutations (kind, job_id, payload, enqueued_at) VALUES (?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, m.Kind, m.JobID, m.Payload, m.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to append mutation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (db *DB) ListMutations(ctx context.Context, kind string) ([]models.PendingMutation, error) {
	query := `SELECT id, kind, job_id, payload, enqueued_at FROM pending_mutations
              WHERE kind = ? ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var mutations []models.PendingMutation
	for rows.Next() {
		var m models.PendingMutation
		if err := rows.Scan(&m.ID, &m.Kind, &m.JobID, &m.Payload, &m.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mutation: %w", err)
		}
		mutations = append(mutations, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return mutations, nil
}

func (db *DB) CountMutations(ctx context.Context, kind string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations WHERE kind = ?`, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return count, nil
}

// ClearMutations empties both queues. Called after a flush pass completes,
// regardless of per-item outcomes.
func (db *DB) ClearMutations(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM pending_mutations`); err != nil {
		return fmt.Errorf("failed to clear mutations: %w", err)
	}
	return nil
}
