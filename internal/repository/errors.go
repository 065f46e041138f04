package repository

import "errors"

// Sentinel errors shared by every backend. Anything else returned by a repository
// is a backend failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateActive = errors.New("owner already has an active ticket in category")
	ErrStateConflict   = errors.New("ticket state changed concurrently")
)
