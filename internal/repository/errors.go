package repository

import "errors"

// ErrNotFound is returned when a referenced row does not exist. Callers decide
// whether to surface it as a 404 or, for ownership probes, as an authorization
// failure so that the existence of foreign ids is not leaked.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint,
// such as a second claim for the same (owner, name). Concurrent upserts that
// race past the read-before-write check end up here.
var ErrDuplicate = errors.New("duplicate")
