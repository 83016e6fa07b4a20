package geo

import (
	"sync"

	"dispatchboard/internal/metrics"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
)

// EnterHandler fires once per job when the device first comes within the
// arrival radius of that job's delivery location.
type EnterHandler func(job *models.Job, sample models.LocationSample)

// ExitHandler fires when a device that has already arrived at a job moves
// back outside the radius.
type ExitHandler func(job *models.Job, sample models.LocationSample)

// Monitor evaluates location samples against a driver's job list. Arrival
// is edge-triggered: a job fires at most one enter event per continuous
// approach, and the marker resets only when a matching exit fires.
type Monitor struct {
	radius  float64
	log     zerolog.Logger
	onEnter EnterHandler
	onExit  ExitHandler

	mu      sync.Mutex
	jobs    []*models.Job
	checked map[int64]bool
}

func NewMonitor(radius float64, logger zerolog.Logger, onEnter EnterHandler, onExit ExitHandler) *Monitor {
	if radius <= 0 {
		radius = models.GeofenceRadiusMeters
	}
	return &Monitor{
		radius:  radius,
		log:     logger.With().Str("component", "geofence").Logger(),
		onEnter: onEnter,
		onExit:  onExit,
		checked: make(map[int64]bool),
	}
}

// SetJobs replaces the job list under evaluation. Checked markers survive a
// refresh so a re-synced list does not re-fire arrivals.
func (m *Monitor) SetJobs(jobs []*models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = jobs
}

// Evaluate runs one location sample against every geocoded job.
func (m *Monitor) Evaluate(sample models.LocationSample) {
	m.mu.Lock()
	jobs := m.jobs
	m.mu.Unlock()

	for _, job := range jobs {
		if !job.HasCoordinates() {
			continue
		}

		dist := DistanceMeters(sample.Lat, sample.Lng, *job.DeliveryLat, *job.DeliveryLng)

		switch {
		case dist <= m.radius:
			m.handleEnter(job, sample, dist)
		default:
			m.handleExit(job, sample, dist)
		}
	}
}

func (m *Monitor) handleEnter(job *models.Job, sample models.LocationSample, dist float64) {
	m.mu.Lock()
	if m.checked[job.ID] {
		m.mu.Unlock()
		return
	}
	// Only a driver actively heading to the job can arrive at it.
	if job.DriverStatus != models.DriverEnRoute {
		m.mu.Unlock()
		return
	}
	m.checked[job.ID] = true
	m.mu.Unlock()

	m.log.Info().Int64("job_id", job.ID).Float64("distance_m", dist).Msg("arrival radius entered")
	metrics.IncGeofence("enter")

	if m.onEnter != nil {
		m.onEnter(job, sample)
	}
}

func (m *Monitor) handleExit(job *models.Job, sample models.LocationSample, dist float64) {
	m.mu.Lock()
	// Exit only fires for a job the device arrived at and is still parked
	// on; once the driver moves to unloading the wander alert is noise.
	if !m.checked[job.ID] || job.DriverStatus != models.DriverArrived {
		m.mu.Unlock()
		return
	}
	delete(m.checked, job.ID)
	m.mu.Unlock()

	m.log.Warn().Int64("job_id", job.ID).Float64("distance_m", dist).Msg("left arrival radius before unloading")
	metrics.IncGeofence("exit")

	if m.onExit != nil {
		m.onExit(job, sample)
	}
}
