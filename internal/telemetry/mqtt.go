// Package telemetry moves GPS fixes: in from the fleet MQTT broker, out to
// the dispatch server on a fixed cadence.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dispatchboard/internal/config"
	"dispatchboard/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTSource subscribes to per-truck location topics on the fleet broker.
// Topic layout: <root>/<truckId>/location, JSON LocationSample payloads.
type MQTTSource struct {
	client    mqtt.Client
	topicRoot string
	qos       byte
	log       zerolog.Logger
}

func NewMQTTSource(cfg config.MQTTConfig, logger zerolog.Logger) (*MQTTSource, error) {
	log := logger.With().Str("component", "mqtt_source").Logger()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Error().Err(err).Msg("mqtt connection lost")
	}
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	return &MQTTSource{
		client:    client,
		topicRoot: cfg.TopicRoot,
		qos:       cfg.QoS,
		log:       log,
	}, nil
}

// locationStream hands samples from broker callbacks to the consumer. Paho
// runs message handlers on its own goroutines and Unsubscribe does not wait
// for in-flight handlers, so every send and the close of out go through the
// same mutex: a handler that lost the race to close sees the flag and drops
// its sample instead of sending on a closed channel.
type locationStream struct {
	out    chan models.LocationSample
	mu     sync.Mutex
	closed bool
}

func newLocationStream() *locationStream {
	return &locationStream{out: make(chan models.LocationSample, 1)}
}

// offer delivers a sample, keeping only the freshest fix under backpressure.
// Offers after close are dropped.
func (l *locationStream) offer(sample models.LocationSample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	select {
	case l.out <- sample:
	default:
		// Full buffer: replace the stale fix with the new one.
		select {
		case <-l.out:
		default:
		}
		select {
		case l.out <- sample:
		default:
		}
	}
}

// close ends the stream. Idempotent, and safe to race with offer.
func (l *locationStream) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.out)
}

// Subscribe starts streaming a truck's location samples. The channel keeps
// only the freshest fix under backpressure; stale samples are dropped. The
// returned cancel function unsubscribes and closes the channel, and the
// sequence does not restart.
func (s *MQTTSource) Subscribe(ctx context.Context, truckID int64) (<-chan models.LocationSample, func(), error) {
	topic := fmt.Sprintf("%s/%d/location", s.topicRoot, truckID)
	stream := newLocationStream()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var sample models.LocationSample
		if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
			s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("discarding malformed location payload")
			return
		}
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now()
		}
		stream.offer(sample)
	}

	if token := s.client.Subscribe(topic, s.qos, handler); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	s.log.Info().Str("topic", topic).Msg("location stream subscribed")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if token := s.client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
				s.log.Warn().Err(token.Error()).Str("topic", topic).Msg("unsubscribe failed")
			}
			stream.close()
		})
	}

	// Release the subscription if the owning context dies first.
	go func() {
		<-ctx.Done()
		cancel()
	}()

	return stream.out, cancel, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
