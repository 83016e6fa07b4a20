package telemetry

import (
	"context"
	"sync"
	"time"

	"dispatchboard/internal/domain"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
)

// Pusher reports the latest known fix to the dispatch server on a fixed
// cadence, independent of the geofence logic. Pushes are fire-and-forget:
// a failed push is logged and the next tick tries again with whatever fix
// is current then.
type Pusher struct {
	gateway  domain.DispatchGateway
	userID   int64
	truckID  int64
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	latest *models.LocationSample
}

func NewPusher(gateway domain.DispatchGateway, userID, truckID int64, interval time.Duration, logger zerolog.Logger) *Pusher {
	if interval <= 0 {
		interval = models.LocationPushInterval
	}
	return &Pusher{
		gateway:  gateway,
		userID:   userID,
		truckID:  truckID,
		interval: interval,
		log:      logger.With().Str("component", "telemetry").Logger(),
	}
}

// Offer records a fix as the latest candidate for the next push.
func (p *Pusher) Offer(sample models.LocationSample) {
	p.mu.Lock()
	p.latest = &sample
	p.mu.Unlock()
}

// Run pushes on every tick until the context is cancelled.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.push(ctx)
		}
	}
}

func (p *Pusher) push(ctx context.Context) {
	p.mu.Lock()
	sample := p.latest
	p.mu.Unlock()

	if sample == nil {
		return
	}

	loc := models.DriverLocation{
		UserID:    p.userID,
		TruckID:   p.truckID,
		Lat:       sample.Lat,
		Lng:       sample.Lng,
		AccuracyM: sample.AccuracyM,
		SpeedKmh:  sample.SpeedKmh,
		Heading:   sample.Heading,
		Timestamp: sample.Timestamp,
	}
	if err := p.gateway.UpdateDriverLocation(ctx, loc); err != nil {
		p.log.Debug().Err(err).Msg("location push failed")
	}
}
