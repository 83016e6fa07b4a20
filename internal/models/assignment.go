package models

import "time"

// Assignment pins one scheduled job to a (truck, time window, date) cell.
// Created and deleted together with the job's SCHEDULED/APPROVED flips.
type Assignment struct {
	ID           int64     `json:"id"`
	JobID        int64     `json:"job_id"`
	TruckID      int64     `json:"truck_id"`
	TimeSlotID   int64     `json:"time_slot_id"`
	SlotPosition int       `json:"slot_position"`
	Date         time.Time `json:"date"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Placeholder is a non-job annotation occupying a capacity block, used for
// notes like breaks or maintenance. SlotPosition 0 is a legacy row and is
// read as block A.
type Placeholder struct {
	ID           int64     `json:"id"`
	TruckID      int64     `json:"truck_id"`
	TimeSlotID   int64     `json:"time_slot_id"`
	SlotPosition int       `json:"slot_position"`
	Date         time.Time `json:"date"`
	Label        string    `json:"label"`
	Color        string    `json:"color"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
