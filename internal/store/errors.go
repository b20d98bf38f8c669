package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the projection.
var ErrNotFound = errors.New("not found")
