package geo

import (
	"testing"

	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	// Sydney Opera House to Sydney Harbour Bridge, roughly 1km.
	d := DistanceMeters(-33.8568, 151.2153, -33.8523, 151.2108)
	assert.InDelta(t, 650, d, 50)

	// Same point.
	assert.Zero(t, DistanceMeters(-33.8568, 151.2153, -33.8568, 151.2153))

	// One degree of latitude is about 111km.
	d = DistanceMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)
}

func geofenceJob(id int64, lat, lng float64, driverStatus string) *models.Job {
	return &models.Job{
		ID:           id,
		DeliveryLat:  &lat,
		DeliveryLng:  &lng,
		Status:       models.StatusInTransit,
		DriverStatus: driverStatus,
	}
}

func TestMonitor_ArrivalFiresOncePerJob(t *testing.T) {
	var entered []int64
	m := NewMonitor(100, zerolog.Nop(), func(job *models.Job, _ models.LocationSample) {
		entered = append(entered, job.ID)
	}, nil)

	job := geofenceJob(1, -33.8568, 151.2153, models.DriverEnRoute)
	m.SetJobs([]*models.Job{job})

	at := models.LocationSample{Lat: -33.8568, Lng: 151.2153}
	m.Evaluate(at)
	m.Evaluate(at)
	m.Evaluate(at)

	assert.Equal(t, []int64{1}, entered)
}

func TestMonitor_ArrivalRequiresEnRoute(t *testing.T) {
	fired := false
	m := NewMonitor(100, zerolog.Nop(), func(*models.Job, models.LocationSample) {
		fired = true
	}, nil)

	m.SetJobs([]*models.Job{geofenceJob(1, -33.8568, 151.2153, models.DriverNotStarted)})
	m.Evaluate(models.LocationSample{Lat: -33.8568, Lng: 151.2153})
	assert.False(t, fired)

	m.SetJobs([]*models.Job{geofenceJob(2, -33.8568, 151.2153, models.DriverUnloading)})
	m.Evaluate(models.LocationSample{Lat: -33.8568, Lng: 151.2153})
	assert.False(t, fired)
}

func TestMonitor_OutsideRadiusDoesNotFire(t *testing.T) {
	fired := false
	m := NewMonitor(100, zerolog.Nop(), func(*models.Job, models.LocationSample) {
		fired = true
	}, nil)

	m.SetJobs([]*models.Job{geofenceJob(1, -33.8568, 151.2153, models.DriverEnRoute)})

	// ~650m away.
	m.Evaluate(models.LocationSample{Lat: -33.8523, Lng: 151.2108})
	assert.False(t, fired)
}

func TestMonitor_ExitAfterArrival(t *testing.T) {
	var exits []int64
	job := geofenceJob(1, -33.8568, 151.2153, models.DriverEnRoute)

	m := NewMonitor(100, zerolog.Nop(), func(j *models.Job, _ models.LocationSample) {
		// Session transitions the field status on arrival.
		j.DriverStatus = models.DriverArrived
	}, func(j *models.Job, _ models.LocationSample) {
		exits = append(exits, j.ID)
	})
	m.SetJobs([]*models.Job{job})

	m.Evaluate(models.LocationSample{Lat: -33.8568, Lng: 151.2153})
	assert.Equal(t, models.DriverArrived, job.DriverStatus)

	// Drive away before unloading: exit fires once and resets the marker.
	m.Evaluate(models.LocationSample{Lat: -33.8523, Lng: 151.2108})
	m.Evaluate(models.LocationSample{Lat: -33.8523, Lng: 151.2108})
	assert.Equal(t, []int64{1}, exits)

	// A fresh approach while EN_ROUTE fires a new enter event.
	job.DriverStatus = models.DriverEnRoute
	m.Evaluate(models.LocationSample{Lat: -33.8568, Lng: 151.2153})
	assert.Equal(t, models.DriverArrived, job.DriverStatus)

	// Once unloading, leaving the radius is no longer reported.
	job.DriverStatus = models.DriverUnloading
	m.Evaluate(models.LocationSample{Lat: -33.8523, Lng: 151.2108})
	assert.Equal(t, []int64{1}, exits)
}

func TestMonitor_SkipsUngeocodedJobs(t *testing.T) {
	fired := false
	m := NewMonitor(100, zerolog.Nop(), func(*models.Job, models.LocationSample) {
		fired = true
	}, nil)

	m.SetJobs([]*models.Job{{ID: 1, DriverStatus: models.DriverEnRoute}})
	m.Evaluate(models.LocationSample{Lat: -33.8568, Lng: 151.2153})
	assert.False(t, fired)
}
