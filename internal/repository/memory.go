package repository

import (
	"context"
	"sync"
	"time"

	"dispatchboard/internal/models"
)

// MemoryStateRepository is the in-process fallback used when Redis is
// unreachable. State lives for the life of the process only.
type MemoryStateRepository struct {
	mu          sync.Mutex
	jobs        map[int64][]*models.Job
	lastSync    map[int64]time.Time
	readMarkers map[string]map[int64]bool
	rateLimits  map[string]*rateLimitEntry
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		jobs:        make(map[int64][]*models.Job),
		lastSync:    make(map[int64]time.Time),
		readMarkers: make(map[string]map[int64]bool),
		rateLimits:  make(map[string]*rateLimitEntry),
	}
}

func (r *MemoryStateRepository) GetCachedJobs(ctx context.Context, userID int64) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[userID], nil
}

func (r *MemoryStateRepository) SetCachedJobs(ctx context.Context, userID int64, jobs []*models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[userID] = jobs
	return nil
}

func (r *MemoryStateRepository) GetLastSync(ctx context.Context, userID int64) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync[userID], nil
}

func (r *MemoryStateRepository) SetLastSync(ctx context.Context, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSync[userID] = at
	return nil
}

func (r *MemoryStateRepository) GetReadMarkers(ctx context.Context, date time.Time) (map[int64]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	markers := make(map[int64]bool)
	for id := range r.readMarkers[date.Format(models.DateLayout)] {
		markers[id] = true
	}
	return markers, nil
}

func (r *MemoryStateRepository) MarkRead(ctx context.Context, date time.Time, jobID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := date.Format(models.DateLayout)
	if r.readMarkers[key] == nil {
		r.readMarkers[key] = make(map[int64]bool)
	}
	r.readMarkers[key][jobID] = true
	return nil
}

func (r *MemoryStateRepository) ClearSession(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, userID)
	delete(r.lastSync, userID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	} else {
		entry.count++
	}

	r.rateLimits[key] = entry
	return entry.count <= limit, nil
}
