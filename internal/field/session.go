package field

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dispatchboard/internal/domain"
	"dispatchboard/internal/events"
	"dispatchboard/internal/geo"
	"dispatchboard/internal/lifecycle"
	"dispatchboard/internal/models"
	"dispatchboard/internal/syncqueue"
	"dispatchboard/internal/telemetry"

	"github.com/rs/zerolog"
)

// Identity names the driver and truck a session belongs to.
type Identity struct {
	UserID   int64
	UserName string
	TruckID  int64
}

// Session is one driver's working state for the day: the cached job list,
// the offline queue, the geofence monitor and the telemetry pusher. All of
// it is torn down on Close; nothing is ambient.
type Session struct {
	id      Identity
	gateway domain.DispatchGateway
	queue   *syncqueue.Queue
	state   domain.StateRepository
	source  domain.LocationSource
	events  domain.EventPublisher
	log     zerolog.Logger

	monitor *geo.Monitor
	pusher  *telemetry.Pusher

	mu     sync.Mutex
	jobs   []*models.Job
	cancel func()
}

// SessionOptions carries the optional collaborators and tuning knobs.
type SessionOptions struct {
	GeofenceRadius float64
	PushInterval   time.Duration
	Source         domain.LocationSource
	State          domain.StateRepository
	Events         domain.EventPublisher
}

func NewSession(id Identity, gateway domain.DispatchGateway, queue *syncqueue.Queue, opts SessionOptions, logger zerolog.Logger) *Session {
	s := &Session{
		id:      id,
		gateway: gateway,
		queue:   queue,
		state:   opts.State,
		source:  opts.Source,
		events:  opts.Events,
		log:     logger.With().Str("component", "driver_session").Int64("user_id", id.UserID).Logger(),
	}

	s.monitor = geo.NewMonitor(opts.GeofenceRadius, logger, s.onGeofenceEnter, s.onGeofenceExit)
	s.pusher = telemetry.NewPusher(gateway, id.UserID, id.TruckID, opts.PushInterval, logger)
	return s
}

// Open hydrates the job list and starts the location pipeline. With no
// location source the geofence and telemetry simply stay off; that is a
// degraded session, not an error.
func (s *Session) Open(ctx context.Context) error {
	if err := s.SyncJobs(ctx); err != nil {
		return err
	}

	if s.source == nil {
		s.log.Info().Msg("no location source, geofencing disabled")
		return nil
	}

	samples, cancel, err := s.source.Subscribe(ctx, s.id.TruckID)
	if err != nil {
		// Same posture as a missing source: run without location features.
		s.log.Warn().Err(err).Msg("location subscription failed, geofencing disabled")
		return nil
	}
	s.cancel = cancel

	go s.pusher.Run(ctx)
	go s.consume(samples)

	return nil
}

// Close releases the location subscription. Cached state is kept so the
// next Open can start offline; Logout is the destructive variant.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Logout tears the session down and clears its persisted state.
func (s *Session) Logout(ctx context.Context) error {
	s.Close()
	if s.state == nil {
		return nil
	}
	return s.state.ClearSession(ctx, s.id.UserID)
}

func (s *Session) consume(samples <-chan models.LocationSample) {
	for sample := range samples {
		s.monitor.Evaluate(sample)
		s.pusher.Offer(sample)
	}
}

// SyncJobs refreshes the day's job list from the gateway, falling back to
// the cached copy while offline.
func (s *Session) SyncJobs(ctx context.Context) error {
	jobs, err := s.gateway.ListDriverJobs(ctx, s.id.UserID, s.id.TruckID)
	if errors.Is(err, domain.ErrNetworkUnavailable) {
		s.log.Warn().Msg("offline, loading cached job list")
		return s.loadCachedJobs(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list driver jobs: %w", err)
	}

	s.setJobs(jobs)

	if s.state != nil {
		if err := s.state.SetCachedJobs(ctx, s.id.UserID, jobs); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache job list")
		}
	}
	return nil
}

func (s *Session) loadCachedJobs(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	jobs, err := s.state.GetCachedJobs(ctx, s.id.UserID)
	if err != nil {
		return fmt.Errorf("failed to load cached jobs: %w", err)
	}
	s.setJobs(jobs)
	return nil
}

func (s *Session) setJobs(jobs []*models.Job) {
	s.mu.Lock()
	s.jobs = jobs
	s.mu.Unlock()
	s.monitor.SetJobs(jobs)
}

// Jobs returns the session's current job list.
func (s *Session) Jobs() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

func (s *Session) job(jobID int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == jobID {
			return job, nil
		}
	}
	return nil, fmt.Errorf("job %d not in session", jobID)
}

// StartJourney moves a job to EN_ROUTE, typically when navigation launches.
func (s *Session) StartJourney(ctx context.Context, jobID int64) error {
	return s.applyStatus(ctx, jobID, models.DriverEnRoute, "")
}

// Arrive is the driver's manual arrival action.
func (s *Session) Arrive(ctx context.Context, jobID int64) error {
	return s.applyStatus(ctx, jobID, models.DriverArrived, "")
}

// BeginUnloading moves an arrived job to UNLOADING.
func (s *Session) BeginUnloading(ctx context.Context, jobID int64) error {
	return s.applyStatus(ctx, jobID, models.DriverUnloading, "")
}

// ReportProblem flags the job with free-text details.
func (s *Session) ReportProblem(ctx context.Context, jobID int64, details string) error {
	if details == "" {
		return fmt.Errorf("%w: problem details are required", domain.ErrValidation)
	}
	if err := s.applyStatus(ctx, jobID, models.DriverProblem, details); err != nil {
		return err
	}

	if s.events != nil {
		job, _ := s.job(jobID)
		_ = s.events.PublishJSON(events.EventProblemReported, events.JobEventPayload{
			JobID:        jobID,
			CustomerName: job.CustomerName,
			DriverStatus: models.DriverProblem,
			Detail:       details,
			ChangedBy:    s.id.UserName,
			ChangedByID:  s.id.UserID,
		})
	}
	return nil
}

// applyStatus validates the transition, attempts the remote write, and on
// network failure queues the mutation instead. The local copy advances in
// both cases so the driver's screen never snaps back.
func (s *Session) applyStatus(ctx context.Context, jobID int64, to, details string) error {
	job, err := s.job(jobID)
	if err != nil {
		return err
	}

	next, err := Transition(job, to)
	if err != nil {
		return err
	}

	update := models.StatusUpdate{
		JobID:          jobID,
		DriverStatus:   next,
		ProblemDetails: details,
		UserID:         s.id.UserID,
		UserName:       s.id.UserName,
	}
	// The first leg of the run also promotes the job itself; jobs already
	// in transit (or otherwise unpromotable) are left alone.
	if next == models.DriverEnRoute {
		if promoted, err := lifecycle.StartTransit(job.Status); err == nil {
			update.Status = promoted
		}
	}

	if err := s.send(ctx, update); err != nil {
		return err
	}

	s.mu.Lock()
	job.DriverStatus = next
	if details != "" {
		job.ProblemDetails = details
	}
	if update.Status != "" {
		job.Status = update.Status
	}
	s.mu.Unlock()

	s.persistCache(ctx)
	return nil
}

func (s *Session) send(ctx context.Context, update models.StatusUpdate) error {
	err := s.gateway.UpdateJobStatus(ctx, update)
	if errors.Is(err, domain.ErrNetworkUnavailable) {
		s.log.Info().Int64("job_id", update.JobID).Msg("offline, queueing status update")
		return s.queue.EnqueueStatusUpdate(ctx, update)
	}
	return err
}

// SubmitPOD completes a job with proof of delivery. Evidence is validated
// locally; an empty submission never reaches the wire.
func (s *Session) SubmitPOD(ctx context.Context, jobID int64, photoURLs []string, signatureURL *string, notes string) error {
	job, err := s.job(jobID)
	if err != nil {
		return err
	}
	if err := CanComplete(job); err != nil {
		return err
	}

	pod := models.PODSubmission{
		JobID:        jobID,
		PhotoURLs:    photoURLs,
		SignatureURL: signatureURL,
		Notes:        notes,
		UserID:       s.id.UserID,
		UserName:     s.id.UserName,
		SubmittedAt:  time.Now(),
	}
	if !pod.HasEvidence() {
		return fmt.Errorf("%w: at least one photo or a signature is required", domain.ErrValidation)
	}

	err = s.gateway.SubmitPOD(ctx, pod)
	if errors.Is(err, domain.ErrNetworkUnavailable) {
		s.log.Info().Int64("job_id", jobID).Msg("offline, queueing pod submission")
		err = s.queue.EnqueuePOD(ctx, pod)
	}
	if err != nil {
		return err
	}

	completedAt := pod.SubmittedAt
	s.mu.Lock()
	job.DriverStatus = models.DriverCompleted
	job.Status = models.StatusDelivered
	job.PODFiles = photoURLs
	job.PODNotes = notes
	job.ActualCompletionTime = &completedAt
	s.mu.Unlock()

	s.persistCache(ctx)

	if s.events != nil {
		_ = s.events.PublishJSON(events.EventJobDelivered, events.JobEventPayload{
			JobID:        jobID,
			CustomerName: job.CustomerName,
			Status:       models.StatusDelivered,
			DriverStatus: models.DriverCompleted,
			ChangedBy:    s.id.UserName,
			ChangedByID:  s.id.UserID,
		})
	}
	return nil
}

// Flush replays the offline queue and refreshes the job list afterwards.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.queue.Flush(ctx); err != nil {
		return err
	}
	return s.SyncJobs(ctx)
}

func (s *Session) persistCache(ctx context.Context) {
	if s.state == nil {
		return
	}
	s.mu.Lock()
	jobs := s.jobs
	s.mu.Unlock()
	if err := s.state.SetCachedJobs(ctx, s.id.UserID, jobs); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache job list")
	}
}

func (s *Session) onGeofenceEnter(job *models.Job, sample models.LocationSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.applyStatus(ctx, job.ID, models.DriverArrived, ""); err != nil {
		s.log.Error().Err(err).Int64("job_id", job.ID).Msg("geofence arrival transition failed")
		return
	}

	if s.events != nil {
		_ = s.events.PublishJSON(events.EventDriverArrived, events.JobEventPayload{
			JobID:        job.ID,
			CustomerName: job.CustomerName,
			DriverStatus: models.DriverArrived,
			ChangedBy:    s.id.UserName,
			ChangedByID:  s.id.UserID,
		})
	}
}

func (s *Session) onGeofenceExit(job *models.Job, sample models.LocationSample) {
	if s.events == nil {
		return
	}
	// Notification only: leaving the radius never rewinds the status.
	_ = s.events.PublishJSON(events.EventGeofenceExit, events.JobEventPayload{
		JobID:        job.ID,
		CustomerName: job.CustomerName,
		DriverStatus: job.DriverStatus,
		ChangedBy:    s.id.UserName,
		ChangedByID:  s.id.UserID,
	})
}
