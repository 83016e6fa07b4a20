package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dispatchboard/internal/models"
)

const placeholderColumns = `id, truck_id, time_slot_id, slot_position, date, label, color, created_at, updated_at`

func scanPlaceholder(row interface{ Scan(...interface{}) error }) (*models.Placeholder, error) {
	var p models.Placeholder
	err := row.Scan(
		&p.ID,
		&p.TruckID,
		&p.TimeSlotID,
		&p.SlotPosition,
		&p.Date,
		&p.Label,
		&p.Color,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreatePlaceholder(ctx context.Context, p *models.Placeholder) error {
	if p.Label == "" {
		return fmt.Errorf("placeholder label is required")
	}

	query := `INSERT INTO placeholders (truck_id, time_slot_id, slot_position, date, label, color, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		p.TruckID,
		p.TimeSlotID,
		p.SlotPosition,
		p.Date.Format(models.DateLayout),
		p.Label,
		p.Color,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create placeholder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (db *DB) GetPlaceholder(ctx context.Context, id int64) (*models.Placeholder, error) {
	query := `SELECT ` + placeholderColumns + ` FROM placeholders WHERE id = ?`

	p, err := scanPlaceholder(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get placeholder: %w", err)
	}
	return p, nil
}

func (db *DB) ListPlaceholdersByDate(ctx context.Context, date time.Time) ([]*models.Placeholder, error) {
	query := `SELECT ` + placeholderColumns + ` FROM placeholders
              WHERE date(date) = date(?) ORDER BY truck_id, time_slot_id, slot_position`

	rows, err := db.QueryContext(ctx, query, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list placeholders: %w", err)
	}
	defer rows.Close()

	var placeholders []*models.Placeholder
	for rows.Next() {
		p, err := scanPlaceholder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placeholder: %w", err)
		}
		placeholders = append(placeholders, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return placeholders, nil
}

func (db *DB) MovePlaceholder(ctx context.Context, id, truckID, timeSlotID int64, position int) error {
	query := `UPDATE placeholders SET truck_id = ?, time_slot_id = ?, slot_position = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, truckID, timeSlotID, position, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to move placeholder: %w", err)
	}
	return nil
}

func (db *DB) DeletePlaceholder(ctx context.Context, id int64) error {
	query := `DELETE FROM placeholders WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete placeholder: %w", err)
	}
	return nil
}
