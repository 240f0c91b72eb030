package rwlock

import (
	"sync"
	"time"
)

// Interface is the operation set of a reentrant reader/writer lock.
// *RWLock implements it.
type Interface interface {
	AcquireRead(timeout time.Duration) error
	ReleaseRead() error
	QueryRead() error

	AcquireWrite(timeout time.Duration) error
	ReleaseWrite() error
	QueryWrite() error
}

var _ Interface = (*RWLock)(nil)

// Locker returns a sync.Locker whose Lock and Unlock call AcquireWrite with
// an infinite timeout and ReleaseWrite. Since sync.Locker cannot report
// errors, they panic on any failure.
func (l *RWLock) Locker() sync.Locker {
	return (*wlocker)(l)
}

// RLocker returns a sync.Locker whose Lock and Unlock call AcquireRead with
// an infinite timeout and ReleaseRead, panicking on failure.
func (l *RWLock) RLocker() sync.Locker {
	return (*rlocker)(l)
}

type wlocker RWLock

func (w *wlocker) Lock()   { must((*RWLock)(w).AcquireWrite(Infinite)) }
func (w *wlocker) Unlock() { must((*RWLock)(w).ReleaseWrite()) }

type rlocker RWLock

func (r *rlocker) Lock()   { must((*RWLock)(r).AcquireRead(Infinite)) }
func (r *rlocker) Unlock() { must((*RWLock)(r).ReleaseRead()) }

func must(err error) {
	if err != nil {
		panic(err)
	}
}
