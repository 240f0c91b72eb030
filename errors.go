package rwlock

import "github.com/go-faster/errors"

var (
	// ErrOutOfMemory is returned when a reader record cannot be stored.
	ErrOutOfMemory = errors.New("rwlock: out of memory")
	// ErrInvalidArgument is returned for a nil or destroyed lock and for
	// invalid options.
	ErrInvalidArgument = errors.New("rwlock: invalid argument")
	// ErrTimeout is returned when an acquisition does not succeed within its
	// timeout.
	ErrTimeout = errors.New("rwlock: timeout")
	// ErrBusy is returned by Destroy while the lock is held.
	ErrBusy = errors.New("rwlock: busy")
	// ErrNotOwner is returned when the calling thread does not hold the
	// access it tries to release or query.
	ErrNotOwner = errors.New("rwlock: not owner")
)
