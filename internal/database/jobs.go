package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dispatchboard/internal/models"
)

const jobColumns = `id, tenant_id, customer_id, customer_name, delivery_type_id, delivery_type_name,
        pickup_location_id, delivery_address, delivery_lat, delivery_lng, requested_date,
        site_contact_name, site_contact_phone, sqm, weight_kg, status, driver_status,
        pod_files, pod_notes, problem_details, estimated_arrival, is_difficult_delivery,
        delivery_difficulty, is_returned, return_reason, actual_completion_time, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.Job, error) {
	var (
		job       models.Job
		lat, lng  sql.NullFloat64
		eta       sql.NullTime
		completed sql.NullTime
		podFiles  string
	)

	err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.CustomerID,
		&job.CustomerName,
		&job.DeliveryTypeID,
		&job.DeliveryTypeName,
		&job.PickupLocationID,
		&job.DeliveryAddress,
		&lat,
		&lng,
		&job.RequestedDate,
		&job.SiteContactName,
		&job.SiteContactPhone,
		&job.Sqm,
		&job.WeightKg,
		&job.Status,
		&job.DriverStatus,
		&podFiles,
		&job.PODNotes,
		&job.ProblemDetails,
		&eta,
		&job.IsDifficultDelivery,
		&job.DeliveryDifficulty,
		&job.IsReturned,
		&job.ReturnReason,
		&completed,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid {
		v := lat.Float64
		job.DeliveryLat = &v
	}
	if lng.Valid {
		v := lng.Float64
		job.DeliveryLng = &v
	}
	if eta.Valid {
		t := eta.Time
		job.EstimatedArrival = &t
	}
	if completed.Valid {
		t := completed.Time
		job.ActualCompletionTime = &t
	}
	if podFiles != "" {
		if err := json.Unmarshal([]byte(podFiles), &job.PODFiles); err != nil {
			return nil, fmt.Errorf("failed to decode pod_files: %w", err)
		}
	}

	return &job, nil
}

func (db *DB) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	podFiles, err := json.Marshal(job.PODFiles)
	if err != nil {
		return fmt.Errorf("failed to encode pod_files: %w", err)
	}
	if job.PODFiles == nil {
		podFiles = []byte("[]")
	}

	query := `INSERT INTO jobs (
            tenant_id, customer_id, customer_name, delivery_type_id, delivery_type_name,
            pickup_location_id, delivery_address, delivery_lat, delivery_lng, requested_date,
            site_contact_name, site_contact_phone, sqm, weight_kg, status, driver_status,
            pod_files, pod_notes, problem_details, is_difficult_delivery, delivery_difficulty,
            is_returned, return_reason, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	var lat, lng interface{}
	if job.DeliveryLat != nil {
		lat = *job.DeliveryLat
	}
	if job.DeliveryLng != nil {
		lng = *job.DeliveryLng
	}

	result, err := db.ExecContext(ctx, query,
		job.TenantID,
		job.CustomerID,
		job.CustomerName,
		job.DeliveryTypeID,
		job.DeliveryTypeName,
		job.PickupLocationID,
		job.DeliveryAddress,
		lat,
		lng,
		job.RequestedDate.Format(models.DateLayout),
		job.SiteContactName,
		job.SiteContactPhone,
		job.Sqm,
		job.WeightKg,
		job.Status,
		job.DriverStatus,
		string(podFiles),
		job.PODNotes,
		job.ProblemDetails,
		job.IsDifficultDelivery,
		job.DeliveryDifficulty,
		job.IsReturned,
		job.ReturnReason,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (db *DB) ListJobsByStatus(ctx context.Context, statuses []string) ([]*models.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + placeholders + `) ORDER BY requested_date, id`

	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListDriverJobs returns the day's jobs for a truck ordered by time window
// and block position. The user id scopes caching upstream, not the query.
func (db *DB) ListDriverJobs(ctx context.Context, userID, truckID int64, date time.Time) ([]*models.Job, error) {
	// jobs.* matches jobColumns order; the schema declares columns in that order.
	query := `SELECT jobs.*
        FROM jobs
        JOIN assignments a ON a.job_id = jobs.id
        WHERE a.truck_id = ? AND date(a.date) = date(?)
        ORDER BY a.time_slot_id, a.slot_position`

	rows, err := db.QueryContext(ctx, query, truckID, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list driver jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (db *DB) UpdateJobDriverStatus(ctx context.Context, id int64, driverStatus, problemDetails string) error {
	query := `UPDATE jobs SET driver_status = ?, problem_details = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, driverStatus, problemDetails, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update driver status: %w", err)
	}
	return nil
}

// MarkJobDelivered applies a POD submission: DELIVERED + COMPLETED plus the
// evidence handles and the completion stamp, in one statement.
func (db *DB) MarkJobDelivered(ctx context.Context, id int64, pod models.PODSubmission) error {
	podFiles, err := json.Marshal(pod.PhotoURLs)
	if err != nil {
		return fmt.Errorf("failed to encode pod_files: %w", err)
	}

	notes := pod.Notes
	if pod.SignatureURL != nil && *pod.SignatureURL != "" {
		// Signature handle rides in pod_files alongside the photos.
		var files []string
		_ = json.Unmarshal(podFiles, &files)
		files = append(files, *pod.SignatureURL)
		podFiles, _ = json.Marshal(files)
	}

	completedAt := pod.SubmittedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	query := `UPDATE jobs SET status = ?, driver_status = ?, pod_files = ?, pod_notes = ?,
            actual_completion_time = ?, updated_at = ? WHERE id = ?`
	_, err = db.ExecContext(ctx, query,
		models.StatusDelivered,
		models.DriverCompleted,
		string(podFiles),
		notes,
		completedAt,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job delivered: %w", err)
	}
	return nil
}
