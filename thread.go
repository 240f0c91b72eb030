package rwlock

import "github.com/petermattis/goid"

// ThreadID identifies the thread (goroutine) that calls into a lock.
// The zero value means no thread.
type ThreadID uint64

// NoThread is the writer identity of a lock that has no writer.
const NoThread ThreadID = 0

// ThreadFunc returns the identity of the calling thread. It must return a
// distinct non-zero value for every live thread.
type ThreadFunc func() ThreadID

// CurrentGoroutine returns the runtime id of the calling goroutine.
func CurrentGoroutine() ThreadID {
	return ThreadID(goid.Get())
}
