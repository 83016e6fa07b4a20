// The agent runs on a driver's device: it syncs the day's jobs from the
// dispatch server, queues status updates and proof-of-delivery submissions
// while offline, and feeds the geofence monitor from the MQTT GPS stream.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dispatchboard/internal/config"
	"dispatchboard/internal/database"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/field"
	"dispatchboard/internal/gateway"
	"dispatchboard/internal/logging"
	"dispatchboard/internal/syncqueue"
	"dispatchboard/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/agent.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()

	queuePath := cfg.Gateway.QueuePath
	if queuePath == "" {
		queuePath = cfg.Database.Path
	}
	if err := os.MkdirAll(filepath.Dir(queuePath), 0o755); err != nil {
		return err
	}

	db, err := database.NewDB(queuePath, baseLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gateway.NewHTTPGateway(cfg.Gateway, cfg.API.Auth.HeaderAPIKey, *baseLogger)

	identity := field.Identity{
		UserID:   cfg.Gateway.UserID,
		UserName: cfg.Gateway.UserName,
		TruckID:  cfg.Gateway.TruckID,
	}
	queue := syncqueue.New(db, client, nil, identity.UserID, *baseLogger)

	var source domain.LocationSource
	if cfg.MQTT.Broker != "" {
		mqttSource, err := telemetry.NewMQTTSource(cfg.MQTT, *baseLogger)
		if err != nil {
			// GPS is optional; the session runs degraded without it.
			logger.Warn().Err(err).Msg("mqtt unavailable, geofencing disabled")
		} else {
			defer mqttSource.Close()
			source = mqttSource
		}
	}

	session := field.NewSession(identity, client, queue, field.SessionOptions{
		GeofenceRadius: cfg.Geofence.RadiusMeters,
		PushInterval:   cfg.Geofence.PushInterval,
		Source:         source,
	}, *baseLogger)

	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close()

	logger.Info().Int64("user_id", identity.UserID).Int64("truck_id", identity.TruckID).Msg("field agent started")

	// Periodic flush drains the offline queue whenever connectivity is back.
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			if n, err := queue.Pending(ctx); err == nil && n > 0 {
				if err := session.Flush(ctx); err != nil {
					logger.Warn().Err(err).Msg("flush attempt failed")
				}
			}
		}
	}
}
