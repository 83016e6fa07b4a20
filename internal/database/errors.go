package database

import "dispatchboard/internal/domain"

// ErrNotFound is returned when a record lookup matches no rows.
var ErrNotFound = domain.ErrNotFound
