package telemetry

import (
	"sync"
	"testing"
	"time"

	"dispatchboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(lat float64) models.LocationSample {
	return models.LocationSample{Lat: lat, Lng: 151.2, Timestamp: time.Now()}
}

func TestLocationStream_KeepsFreshestFix(t *testing.T) {
	stream := newLocationStream()

	stream.offer(sampleAt(1))
	stream.offer(sampleAt(2))
	stream.offer(sampleAt(3))

	got := <-stream.out
	assert.Equal(t, float64(3), got.Lat)

	select {
	case extra := <-stream.out:
		t.Fatalf("expected a single buffered fix, got another: %+v", extra)
	default:
	}
}

func TestLocationStream_CloseDrainsToConsumer(t *testing.T) {
	stream := newLocationStream()

	stream.offer(sampleAt(1))
	stream.close()

	// The buffered fix survives close; the channel then reports closed.
	got, ok := <-stream.out
	require.True(t, ok)
	assert.Equal(t, float64(1), got.Lat)

	_, ok = <-stream.out
	assert.False(t, ok)
}

func TestLocationStream_OfferAfterCloseIsDropped(t *testing.T) {
	stream := newLocationStream()
	stream.close()

	// A broker callback that lost the race to close must not panic.
	stream.offer(sampleAt(1))

	_, ok := <-stream.out
	assert.False(t, ok)
}

func TestLocationStream_CloseIsIdempotent(t *testing.T) {
	stream := newLocationStream()
	stream.close()
	stream.close()
}

func TestLocationStream_ConcurrentOffersAndClose(t *testing.T) {
	stream := newLocationStream()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(lat float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stream.offer(sampleAt(lat))
			}
		}(float64(i))
	}

	// Drain while producers run, then tear down mid-flight.
	go func() {
		for range stream.out {
		}
	}()
	stream.close()
	wg.Wait()
}
