package models

import "time"

// Job statuses.
const (
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusApproved        = "APPROVED"
	StatusScheduled       = "SCHEDULED"
	StatusInTransit       = "IN_TRANSIT"
	StatusDelivered       = "DELIVERED"
	StatusCancelled       = "CANCELLED"
	StatusReturned        = "RETURNED"
)

// Driver field statuses.
const (
	DriverNotStarted = "NOT_STARTED"
	DriverEnRoute    = "EN_ROUTE"
	DriverArrived    = "ARRIVED"
	DriverUnloading  = "UNLOADING"
	DriverProblem    = "PROBLEM"
	DriverCompleted  = "COMPLETED"
)

// IsTerminalStatus reports whether a job status refuses further transitions.
func IsTerminalStatus(status string) bool {
	return status == StatusCancelled || status == StatusReturned
}

// ActiveStatuses is the set the board fetches for a date.
var ActiveStatuses = []string{
	StatusPendingApproval,
	StatusApproved,
	StatusScheduled,
	StatusInTransit,
	StatusDelivered,
}

// Capacity grid. Each (truck, time window, date) cell holds two blocks:
// block A anchored at position 1, block B at position 3. Legacy rows may
// carry 2 or 4; reads fold those into A and B, writes only emit 1 or 3.
const (
	BlockAPosition = 1
	BlockBPosition = 3
	CellCapacity   = 2
)

// Pending mutation kinds.
const (
	MutationStatusUpdate = "status-update"
	MutationPODSubmit    = "pod-submit"
)

// Tagged id prefixes used by drag payloads.
const (
	JobIDPrefix         = "job:"
	PlaceholderIDPrefix = "ph:"
)

// Geofencing and telemetry.
const (
	GeofenceRadiusMeters = 100.0
	EarthRadiusMeters    = 6371000.0
	LocationPushInterval = 30 * time.Second
)

// TimeSlotCount is the number of fixed daily delivery windows.
const TimeSlotCount = 5

// TimeSlot is one of the fixed daily delivery windows shared by all trucks.
type TimeSlot struct {
	ID    int64  `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// DefaultTimeSlots is used when config does not override the labels.
var DefaultTimeSlots = []TimeSlot{
	{ID: 1, Label: "6-8am"},
	{ID: 2, Label: "8-10am"},
	{ID: 3, Label: "10am-12pm"},
	{ID: 4, Label: "12-2pm"},
	{ID: 5, Label: "2-4pm"},
}

const (
	// DateLayout is the canonical YYYY-MM-DD form used for board dates.
	DateLayout = "2006-01-02"

	// DefaultRedisTTL is the lifetime of cached driver session state.
	DefaultRedisTTL = 24 * time.Hour

	// WorkerQueueSize caps the schedule mirror in-memory queue.
	WorkerQueueSize = 128

	// RateLimitRequests / RateLimitWindow bound driver API traffic per key.
	RateLimitRequests = 60
	RateLimitWindow   = time.Minute
)
