package models

import "time"

// Job is a delivery job owned by the dispatch tenant. Dispatchers mutate
// Status, drivers mutate DriverStatus and the POD fields.
type Job struct {
	ID                   int64      `json:"id"`
	TenantID             string     `json:"tenant_id"`
	CustomerID           int64      `json:"customer_id"`
	CustomerName         string     `json:"customer_name"`
	DeliveryTypeID       int64      `json:"delivery_type_id"`
	DeliveryTypeName     string     `json:"delivery_type_name"`
	PickupLocationID     int64      `json:"pickup_location_id"`
	DeliveryAddress      string     `json:"delivery_address"`
	DeliveryLat          *float64   `json:"delivery_lat,omitempty"`
	DeliveryLng          *float64   `json:"delivery_lng,omitempty"`
	RequestedDate        time.Time  `json:"requested_date"`
	SiteContactName      string     `json:"site_contact_name"`
	SiteContactPhone     string     `json:"site_contact_phone"`
	Sqm                  float64    `json:"sqm"`
	WeightKg             float64    `json:"weight_kg"`
	Status               string     `json:"status"`
	DriverStatus         string     `json:"driver_status"`
	PODFiles             []string   `json:"pod_files,omitempty"`
	PODNotes             string     `json:"pod_notes,omitempty"`
	ProblemDetails       string     `json:"problem_details,omitempty"`
	EstimatedArrival     *time.Time `json:"estimated_arrival,omitempty"`
	IsDifficultDelivery  bool       `json:"is_difficult_delivery"`
	DeliveryDifficulty   string     `json:"delivery_difficulty,omitempty"`
	IsReturned           bool       `json:"is_returned"`
	ReturnReason         string     `json:"return_reason,omitempty"`
	ActualCompletionTime *time.Time `json:"actual_completion_time,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether the delivery location is geocoded and can
// participate in geofencing.
func (j *Job) HasCoordinates() bool {
	return j != nil && j.DeliveryLat != nil && j.DeliveryLng != nil
}

// DeliveryType is reference data describing what is being delivered.
type DeliveryType struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Truck is reference data for one vehicle column on the board.
type Truck struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Rego string `json:"rego" yaml:"rego"`
}
