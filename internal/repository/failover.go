package repository

import (
	"context"
	"sync/atomic"
	"time"

	"dispatchboard/internal/domain"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository fronts Redis with an in-memory fallback. The
// first primary error marks it down; after a minute the next read probes
// the primary again. Failed-over state is not merged back on recovery.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

// shouldProbe reports whether a downed primary is due for a recovery try.
func (r *FailoverStateRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverStateRepository) GetCachedJobs(ctx context.Context, userID int64) ([]*models.Job, error) {
	if !r.isDown.Load() {
		jobs, err := r.primary.GetCachedJobs(ctx, userID)
		if err == nil {
			return jobs, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		jobs, err := r.primary.GetCachedJobs(ctx, userID)
		if err == nil {
			r.isDown.Store(false)
			return jobs, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetCachedJobs(ctx, userID)
}

func (r *FailoverStateRepository) SetCachedJobs(ctx context.Context, userID int64, jobs []*models.Job) error {
	if !r.isDown.Load() {
		err := r.primary.SetCachedJobs(ctx, userID, jobs)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetCachedJobs(ctx, userID, jobs)
}

func (r *FailoverStateRepository) GetLastSync(ctx context.Context, userID int64) (time.Time, error) {
	if !r.isDown.Load() {
		at, err := r.primary.GetLastSync(ctx, userID)
		if err == nil {
			return at, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetLastSync(ctx, userID)
}

func (r *FailoverStateRepository) SetLastSync(ctx context.Context, userID int64, at time.Time) error {
	if !r.isDown.Load() {
		err := r.primary.SetLastSync(ctx, userID, at)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetLastSync(ctx, userID, at)
}

func (r *FailoverStateRepository) GetReadMarkers(ctx context.Context, date time.Time) (map[int64]bool, error) {
	if !r.isDown.Load() {
		markers, err := r.primary.GetReadMarkers(ctx, date)
		if err == nil {
			return markers, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		markers, err := r.primary.GetReadMarkers(ctx, date)
		if err == nil {
			r.isDown.Store(false)
			return markers, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetReadMarkers(ctx, date)
}

func (r *FailoverStateRepository) MarkRead(ctx context.Context, date time.Time, jobID int64) error {
	if !r.isDown.Load() {
		err := r.primary.MarkRead(ctx, date, jobID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.MarkRead(ctx, date, jobID)
}

func (r *FailoverStateRepository) ClearSession(ctx context.Context, userID int64) error {
	if !r.isDown.Load() {
		err := r.primary.ClearSession(ctx, userID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearSession(ctx, userID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
