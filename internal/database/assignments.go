package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dispatchboard/internal/models"
)

const assignmentColumns = `id, job_id, truck_id, time_slot_id, slot_position, date, created_at, updated_at`

func scanAssignment(row interface{ Scan(...interface{}) error }) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(
		&a.ID,
		&a.JobID,
		&a.TruckID,
		&a.TimeSlotID,
		&a.SlotPosition,
		&a.Date,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (db *DB) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	query := `INSERT INTO assignments (job_id, truck_id, time_slot_id, slot_position, date, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		a.JobID,
		a.TruckID,
		a.TimeSlotID,
		a.SlotPosition,
		a.Date.Format(models.DateLayout),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (db *DB) ListAssignmentsByDate(ctx context.Context, date time.Time) ([]*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
              WHERE date(date) = date(?) ORDER BY truck_id, time_slot_id, slot_position`

	rows, err := db.QueryContext(ctx, query, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (db *DB) GetAssignmentByJob(ctx context.Context, jobID int64, date time.Time) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
              WHERE job_id = ? AND date(date) = date(?)`

	a, err := scanAssignment(db.QueryRowContext(ctx, query, jobID, date.Format(models.DateLayout)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

func (db *DB) MoveAssignment(ctx context.Context, id, truckID, timeSlotID int64, position int) error {
	query := `UPDATE assignments SET truck_id = ?, time_slot_id = ?, slot_position = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, truckID, timeSlotID, position, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to move assignment: %w", err)
	}
	return nil
}

// DeleteAssignmentByJob removes a job's assignment for a date. Returns false
// when nothing was scheduled, which callers treat as an idempotent no-op.
func (db *DB) DeleteAssignmentByJob(ctx context.Context, jobID int64, date time.Time) (bool, error) {
	query := `DELETE FROM assignments WHERE job_id = ? AND date(date) = date(?)`
	result, err := db.ExecContext(ctx, query, jobID, date.Format(models.DateLayout))
	if err != nil {
		return false, fmt.Errorf("failed to delete assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}
