// Package lifecycle holds the dispatcher-facing job status machine. Driver
// field statuses live in internal/field; the two meet where a field event
// promotes or completes the job-level status.
package lifecycle

import (
	"errors"
	"fmt"

	"dispatchboard/internal/models"
)

// ErrInvalidTransition is returned for any move the status machine does not
// allow, including any move out of a terminal status.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions maps each status to the set it may move to. CANCELLED and
// RETURNED are terminal and deliberately absent as sources. DELIVERED is
// reachable from every non-terminal source: a proof-of-delivery submission
// completes the job even when the driver never reported starting the run.
var transitions = map[string][]string{
	models.StatusPendingApproval: {models.StatusApproved, models.StatusScheduled, models.StatusDelivered, models.StatusCancelled},
	models.StatusApproved:        {models.StatusScheduled, models.StatusDelivered, models.StatusCancelled},
	models.StatusScheduled:       {models.StatusInTransit, models.StatusApproved, models.StatusDelivered, models.StatusCancelled},
	models.StatusInTransit:       {models.StatusDelivered, models.StatusReturned, models.StatusCancelled},
	models.StatusDelivered:       {models.StatusReturned},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to string) bool {
	if models.IsTerminalStatus(from) {
		return false
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates a move and returns the new status. The error wraps
// ErrInvalidTransition with the offending pair for logging.
func Transition(from, to string) (string, error) {
	if !CanTransition(from, to) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Schedule is the board placing an approved job into a cell.
func Schedule(from string) (string, error) {
	return Transition(from, models.StatusScheduled)
}

// Unschedule reverts a scheduled job back to the approved pool. It is
// idempotent for jobs already in APPROVED so removing an already-removed
// card is a no-op rather than an error.
func Unschedule(from string) (string, error) {
	if from == models.StatusApproved {
		return models.StatusApproved, nil
	}
	return Transition(from, models.StatusApproved)
}

// StartTransit is the driver beginning the run; the job-level status
// follows the first EN_ROUTE field event.
func StartTransit(from string) (string, error) {
	return Transition(from, models.StatusInTransit)
}

// Deliver applies a proof-of-delivery submission. Evidence is validated by
// the caller; this only moves the status. Re-delivering an already
// DELIVERED job is a no-op so a replayed submission cannot fail here.
func Deliver(from string) (string, error) {
	if from == models.StatusDelivered {
		return models.StatusDelivered, nil
	}
	return Transition(from, models.StatusDelivered)
}
