package domain

import (
	"context"
	"time"

	"dispatchboard/internal/models"
)

// RecordStore is the persistence collaborator for jobs, assignments and
// placeholders. Every mutation is a single unconditional create/update/delete;
// multi-step sequences are not transactional (known risk, accepted).
type RecordStore interface {
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobsByStatus(ctx context.Context, statuses []string) ([]*models.Job, error)
	ListDriverJobs(ctx context.Context, userID, truckID int64, date time.Time) ([]*models.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status string) error
	UpdateJobDriverStatus(ctx context.Context, id int64, driverStatus, problemDetails string) error
	MarkJobDelivered(ctx context.Context, id int64, pod models.PODSubmission) error

	ListAssignmentsByDate(ctx context.Context, date time.Time) ([]*models.Assignment, error)
	GetAssignmentByJob(ctx context.Context, jobID int64, date time.Time) (*models.Assignment, error)
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	MoveAssignment(ctx context.Context, id, truckID, timeSlotID int64, position int) error
	DeleteAssignmentByJob(ctx context.Context, jobID int64, date time.Time) (bool, error)

	ListPlaceholdersByDate(ctx context.Context, date time.Time) ([]*models.Placeholder, error)
	GetPlaceholder(ctx context.Context, id int64) (*models.Placeholder, error)
	CreatePlaceholder(ctx context.Context, p *models.Placeholder) error
	MovePlaceholder(ctx context.Context, id, truckID, timeSlotID int64, position int) error
	DeletePlaceholder(ctx context.Context, id int64) error
}

// MutationStore persists offline-originated mutations until a flush pass.
type MutationStore interface {
	AppendMutation(ctx context.Context, m *models.PendingMutation) error
	ListMutations(ctx context.Context, kind string) ([]models.PendingMutation, error)
	CountMutations(ctx context.Context, kind string) (int, error)
	ClearMutations(ctx context.Context) error
}

// StateRepository holds per-session state: the cached driver job list, the
// board's notification read markers, last-sync stamps and rate limits.
type StateRepository interface {
	GetCachedJobs(ctx context.Context, userID int64) ([]*models.Job, error)
	SetCachedJobs(ctx context.Context, userID int64, jobs []*models.Job) error
	GetLastSync(ctx context.Context, userID int64) (time.Time, error)
	SetLastSync(ctx context.Context, userID int64, at time.Time) error
	GetReadMarkers(ctx context.Context, date time.Time) (map[int64]bool, error)
	MarkRead(ctx context.Context, date time.Time, jobID int64) error
	ClearSession(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// DispatchGateway is the remote side consumed by field devices.
type DispatchGateway interface {
	UpdateJobStatus(ctx context.Context, u models.StatusUpdate) error
	SubmitPOD(ctx context.Context, p models.PODSubmission) error
	UpdateDriverLocation(ctx context.Context, l models.DriverLocation) error
	ListDriverJobs(ctx context.Context, userID, truckID int64) ([]*models.Job, error)
}

// EventPublisher fans dispatch events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// LocationSource is a cancellable subscription to a device's GPS stream.
// The returned channel is closed when the subscription is cancelled; the
// sequence does not restart.
type LocationSource interface {
	Subscribe(ctx context.Context, truckID int64) (<-chan models.LocationSample, func(), error)
}

// SyncScheduler enqueues schedule-mirror work for a board date.
type SyncScheduler interface {
	EnqueueScheduleSync(ctx context.Context, date time.Time) error
}
