package domain

import "errors"

// ErrNetworkUnavailable marks a remote call that failed because the device
// is offline. Callers redirect the mutation into the offline queue instead
// of dropping it.
var ErrNetworkUnavailable = errors.New("network unavailable")

// ErrValidation marks input rejected locally before any remote call.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned when a record lookup matches no rows.
var ErrNotFound = errors.New("record not found")
