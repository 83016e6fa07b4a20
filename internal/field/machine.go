// Package field holds the driver-side status machine and the session that
// drives it from driver actions, geofence events and the location stream.
package field

import (
	"fmt"

	"dispatchboard/internal/lifecycle"
	"dispatchboard/internal/models"
)

// driverTransitions maps each field status to the moves a driver action may
// make. COMPLETED is deliberately absent as a target: it is only reachable
// through a proof-of-delivery submission, never a plain status change.
var driverTransitions = map[string][]string{
	models.DriverNotStarted: {models.DriverEnRoute, models.DriverProblem},
	models.DriverEnRoute:    {models.DriverArrived, models.DriverProblem},
	models.DriverArrived:    {models.DriverUnloading, models.DriverProblem},
	models.DriverUnloading:  {models.DriverProblem},
	models.DriverProblem:    {models.DriverEnRoute, models.DriverArrived, models.DriverUnloading},
}

// CanTransition reports whether a driver action may move from -> to.
func CanTransition(from, to string) bool {
	if from == models.DriverCompleted {
		return false
	}
	for _, allowed := range driverTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates a driver action against both the field machine and
// the job-level terminal statuses.
func Transition(job *models.Job, to string) (string, error) {
	if models.IsTerminalStatus(job.Status) {
		return "", fmt.Errorf("%w: job is %s", lifecycle.ErrInvalidTransition, job.Status)
	}
	if !CanTransition(job.DriverStatus, to) {
		return "", fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, job.DriverStatus, to)
	}
	return to, nil
}

// CanComplete reports whether a POD submission may complete the job: any
// state but COMPLETED qualifies, provided the job itself is not terminal.
func CanComplete(job *models.Job) error {
	if models.IsTerminalStatus(job.Status) {
		return fmt.Errorf("%w: job is %s", lifecycle.ErrInvalidTransition, job.Status)
	}
	if job.DriverStatus == models.DriverCompleted {
		return fmt.Errorf("%w: job already completed", lifecycle.ErrInvalidTransition)
	}
	return nil
}
