// Package syncqueue buffers driver mutations made while the device has no
// connectivity and replays them when it comes back.
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dispatchboard/internal/domain"
	"dispatchboard/internal/metrics"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
)

// Queue is the offline mutation queue for one driver session. Mutations are
// persisted the moment they are enqueued so a crash between enqueue and
// flush loses nothing. Delivery is at-most-once: a flush pass replays every
// queued mutation in order and then clears the queue regardless of per-item
// outcomes, logging and counting the rejects.
type Queue struct {
	store   domain.MutationStore
	gateway domain.DispatchGateway
	state   domain.StateRepository
	userID  int64
	log     zerolog.Logger
}

func New(store domain.MutationStore, gateway domain.DispatchGateway, state domain.StateRepository, userID int64, logger zerolog.Logger) *Queue {
	return &Queue{
		store:   store,
		gateway: gateway,
		state:   state,
		userID:  userID,
		log:     logger.With().Str("component", "syncqueue").Logger(),
	}
}

// EnqueueStatusUpdate persists a status mutation for later replay.
func (q *Queue) EnqueueStatusUpdate(ctx context.Context, u models.StatusUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode status update: %w", err)
	}
	return q.enqueue(ctx, models.MutationStatusUpdate, u.JobID, payload)
}

// EnqueuePOD persists a proof-of-delivery submission for later replay.
func (q *Queue) EnqueuePOD(ctx context.Context, p models.PODSubmission) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pod submission: %w", err)
	}
	return q.enqueue(ctx, models.MutationPODSubmit, p.JobID, payload)
}

func (q *Queue) enqueue(ctx context.Context, kind string, jobID int64, payload []byte) error {
	m := &models.PendingMutation{
		Kind:    kind,
		JobID:   jobID,
		Payload: string(payload),
	}
	if err := q.store.AppendMutation(ctx, m); err != nil {
		return fmt.Errorf("failed to enqueue %s mutation: %w", kind, err)
	}

	metrics.IncEnqueued(kind)
	q.log.Info().Str("kind", kind).Int64("job_id", jobID).Msg("mutation queued offline")
	return nil
}

// Pending returns the total number of queued mutations across both kinds.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []string{models.MutationStatusUpdate, models.MutationPODSubmit} {
		n, err := q.store.CountMutations(ctx, kind)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Flush replays the queue against the gateway: status updates first, then
// POD submissions, each kind oldest-first. A mutation the remote rejects is
// logged and dropped; the pass never re-runs it. The queue is cleared even
// when items failed, and the session's last-sync stamp is advanced.
func (q *Queue) Flush(ctx context.Context) error {
	sent, failed := 0, 0

	for _, kind := range []string{models.MutationStatusUpdate, models.MutationPODSubmit} {
		mutations, err := q.store.ListMutations(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to read %s queue: %w", kind, err)
		}

		for _, m := range mutations {
			if err := q.replay(ctx, m); err != nil {
				failed++
				metrics.IncFlushFailure(kind)
				q.log.Error().Err(err).
					Str("kind", m.Kind).
					Int64("job_id", m.JobID).
					Time("enqueued_at", m.EnqueuedAt).
					Msg("queued mutation rejected during flush, dropping")
				continue
			}
			sent++
			metrics.IncFlushed(kind)
		}
	}

	if err := q.store.ClearMutations(ctx); err != nil {
		return fmt.Errorf("failed to clear mutation queue: %w", err)
	}

	if q.state != nil {
		if err := q.state.SetLastSync(ctx, q.userID, time.Now()); err != nil {
			q.log.Warn().Err(err).Msg("failed to record last sync time")
		}
	}

	q.log.Info().Int("sent", sent).Int("failed", failed).Msg("offline queue flushed")
	return nil
}

func (q *Queue) replay(ctx context.Context, m models.PendingMutation) error {
	switch m.Kind {
	case models.MutationStatusUpdate:
		var u models.StatusUpdate
		if err := json.Unmarshal([]byte(m.Payload), &u); err != nil {
			return fmt.Errorf("failed to decode status update payload: %w", err)
		}
		return q.gateway.UpdateJobStatus(ctx, u)

	case models.MutationPODSubmit:
		var p models.PODSubmission
		if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
			return fmt.Errorf("failed to decode pod payload: %w", err)
		}
		return q.gateway.SubmitPOD(ctx, p)

	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}
