package models

import "time"

// LocationSample is one GPS fix from a field device. Transient: only the
// latest value is kept, plus the periodic pushes to fleet tracking.
type LocationSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	SpeedKmh  float64   `json:"speed_kmh"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverLocation is the telemetry push shape for fleet tracking.
type DriverLocation struct {
	UserID    int64     `json:"user_id"`
	TruckID   int64     `json:"truck_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	SpeedKmh  float64   `json:"speed_kmh"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}
