package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrLockHeld     = errors.New("lock already held")

	// ErrRemoteFetch marks a failed read from an upstream API. Cycles retry
	// these with backoff before giving up.
	ErrRemoteFetch = errors.New("remote fetch failed")
	// ErrInconsistent aborts a cycle whose base state cannot be trusted.
	ErrInconsistent = errors.New("inconsistent state")
	// ErrCommit marks a failed transactional write.
	ErrCommit = errors.New("commit failed")
	// ErrInvalidRecord marks a remote record that failed boundary validation.
	ErrInvalidRecord = errors.New("invalid record")
)
