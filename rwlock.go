// Package rwlock implements a reentrant reader/writer lock.
//
// A thread may take read access any number of times and must release it as
// many times. Write access is exclusive and reentrant for the thread that
// holds it. A thread that is the only reader of a lock may also take write
// access without giving up its reads, and a writer may take read access
// under its own write access.
//
// Threads are told apart by a ThreadFunc, by default the runtime id of the
// calling goroutine, so a lock must be released by the goroutine that
// acquired it.
package rwlock

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/thetarby/rwlock/tree"
)

// Infinite makes an acquisition wait until it succeeds. Any negative
// timeout behaves the same way.
const Infinite time.Duration = -1

type readerRecord struct {
	thread   ThreadID
	requests int
}

// RWLock is a reentrant reader/writer lock. Create it with New and release
// its resources with Destroy.
type RWLock struct {
	mu sync.Mutex // bookkeeping; never held across a wait

	readerCount         int
	readers             *tree.Index[ThreadID, *readerRecord]
	readerThreadCount   int
	activeReaderThreads int
	writerCount         int
	writerThread        ThreadID

	writerDone  event // posted when writerCount drops to 0
	readersDone event // posted when readers leave or the writer leaves

	destroyed bool

	opts options
	log  *zap.Logger
}

// New returns an unlocked RWLock.
func New(opts ...Option) (*RWLock, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	return &RWLock{
		readers: tree.New[ThreadID, *readerRecord](tree.WithDegree(o.indexDegree)),
		opts:    o,
		log:     o.logger.With(zap.String("lock", o.name)),
	}, nil
}

// Destroy releases the lock. It fails with ErrBusy while any thread holds
// read or write access; the lock stays usable in that case. Every later
// call on a destroyed lock returns ErrInvalidArgument.
func (l *RWLock) Destroy() error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil lock")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return errors.Wrap(ErrInvalidArgument, "lock destroyed")
	}
	if l.readerCount > 0 || l.writerCount > 0 {
		l.opts.metrics.callerError(l.opts.name, "destroy")
		l.log.Warn("destroy of busy lock",
			zap.Int("readers", l.readerCount),
			zap.Int("writers", l.writerCount))
		return errors.Wrapf(ErrBusy, "%d readers, %d writers", l.readerCount, l.writerCount)
	}

	l.readers.Enumerate(func(_ ThreadID, rec *readerRecord) bool {
		rec.requests = 0
		return true
	})
	l.readers.Clear()
	l.readerThreadCount = 0
	l.destroyed = true

	// Anyone still parked re-checks and sees the lock is gone.
	l.writerDone.post()
	l.readersDone.post()
	return nil
}

// AcquireRead takes read access for the calling thread, waiting up to
// timeout while another thread holds write access.
func (l *RWLock) AcquireRead(timeout time.Duration) error {
	return l.acquire(context.Background(), timeout, modeRead)
}

// AcquireReadContext is like AcquireRead but waits until ctx is done
// instead of for a fixed timeout.
func (l *RWLock) AcquireReadContext(ctx context.Context) error {
	return l.acquire(ctx, Infinite, modeRead)
}

// ReleaseRead undoes one AcquireRead of the calling thread.
func (l *RWLock) ReleaseRead() error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil lock")
	}
	self := l.opts.thread()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return errors.Wrap(ErrInvalidArgument, "lock destroyed")
	}

	rec, ok := l.readers.Find(self)
	if !ok || rec.requests == 0 {
		l.misuse("release read", self)
		return errors.Wrapf(ErrNotOwner, "thread %d holds no read access", uint64(self))
	}

	rec.requests--
	l.readerCount--
	if rec.requests == 0 {
		l.activeReaderThreads--
	}

	switch {
	case l.readerCount == 0:
		l.readersDone.post()
	case rec.requests == 0 && l.activeReaderThreads == 1 && l.writerCount == 0:
		// The remaining reader may be waiting to upgrade.
		l.readersDone.post()
	}

	l.opts.metrics.released(l.opts.name, modeRead)
	return nil
}

// QueryRead returns nil if the calling thread holds read access and
// ErrNotOwner otherwise.
func (l *RWLock) QueryRead() error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil lock")
	}
	self := l.opts.thread()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return errors.Wrap(ErrInvalidArgument, "lock destroyed")
	}
	if rec, ok := l.readers.Find(self); ok && rec.requests > 0 {
		return nil
	}
	return ErrNotOwner
}

// AcquireWrite takes write access for the calling thread. It succeeds
// immediately when the lock is free, when the caller already writes, or
// when the caller is the only reader; otherwise it waits up to timeout.
func (l *RWLock) AcquireWrite(timeout time.Duration) error {
	return l.acquire(context.Background(), timeout, modeWrite)
}

// AcquireWriteContext is like AcquireWrite but waits until ctx is done
// instead of for a fixed timeout.
func (l *RWLock) AcquireWriteContext(ctx context.Context) error {
	return l.acquire(ctx, Infinite, modeWrite)
}

// ReleaseWrite undoes one AcquireWrite of the calling thread.
func (l *RWLock) ReleaseWrite() error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil lock")
	}
	self := l.opts.thread()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return errors.Wrap(ErrInvalidArgument, "lock destroyed")
	}
	if l.writerCount == 0 || l.writerThread != self {
		l.misuse("release write", self)
		return errors.Wrapf(ErrNotOwner, "thread %d holds no write access", uint64(self))
	}

	l.writerCount--
	if l.writerCount == 0 {
		l.writerThread = NoThread
		l.writerDone.post()
		l.readersDone.post()
	}

	l.opts.metrics.released(l.opts.name, modeWrite)
	return nil
}

// QueryWrite returns nil if the calling thread holds write access and
// ErrNotOwner otherwise.
func (l *RWLock) QueryWrite() error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil lock")
	}
	self := l.opts.thread()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return errors.Wrap(ErrInvalidArgument, "lock destroyed")
	}
	if l.writerCount > 0 && l.writerThread == self {
		return nil
	}
	return ErrNotOwner
}

func (l *RWLock) acquire(ctx context.Context, timeout time.Duration, mode string) error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil lock")
	}
	self := l.opts.thread()
	start := l.opts.clock.Now()

	ready, done, grant := l.readReady, &l.writerDone, l.grantRead
	if mode == modeWrite {
		ready, done, grant = l.writeReady, &l.readersDone, l.grantWrite
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d := deadline{clock: l.opts.clock, timeout: timeout}
	defer d.stop()

	for {
		if l.destroyed {
			l.opts.metrics.failed(l.opts.name, mode, outcomeInvalid)
			return errors.Wrap(ErrInvalidArgument, "lock destroyed")
		}
		if ready(self) {
			break
		}
		if err := l.wait(ctx, done.wait(), &d); err != nil {
			outcome := outcomeTimeout
			if !errors.Is(err, ErrTimeout) {
				outcome = outcomeCanceled
			}
			l.opts.metrics.failed(l.opts.name, mode, outcome)
			l.log.Debug("acquisition abandoned",
				zap.String("mode", mode),
				zap.Uint64("thread", uint64(self)),
				zap.Duration("timeout", timeout),
				zap.Error(err))
			return err
		}
	}

	if err := grant(self); err != nil {
		return err
	}
	l.opts.metrics.acquired(l.opts.name, mode, l.opts.clock.Since(start))
	return nil
}

// wait parks the caller on signal with the bookkeeping mutex released.
// The mutex is held again when wait returns.
func (l *RWLock) wait(ctx context.Context, signal <-chan struct{}, d *deadline) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expired, err := d.arm()
	if err != nil {
		return err
	}

	l.mu.Unlock()
	defer l.mu.Lock()

	select {
	case <-signal:
		return nil
	case <-expired:
		return errors.Wrapf(ErrTimeout, "not acquired within %s", d.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *RWLock) readReady(self ThreadID) bool {
	return l.writerCount == 0 || l.writerThread == self
}

func (l *RWLock) writeReady(self ThreadID) bool {
	if l.writerCount > 0 {
		return l.writerThread == self
	}
	if l.readerCount == 0 {
		return true
	}
	rec, ok := l.readers.Find(self)
	return ok && rec.requests == l.readerCount
}

func (l *RWLock) grantRead(self ThreadID) error {
	rec, ok := l.readers.Find(self)
	if !ok {
		rec = &readerRecord{thread: self}
		if err := l.readers.Insert(self, rec); err != nil {
			return errors.Wrapf(ErrOutOfMemory, "store reader record: %v", err)
		}
		l.readerThreadCount++
	}
	if rec.requests == 0 {
		l.activeReaderThreads++
	}
	rec.requests++
	l.readerCount++
	return nil
}

func (l *RWLock) grantWrite(self ThreadID) error {
	l.writerCount++
	l.writerThread = self
	return nil
}

func (l *RWLock) misuse(op string, self ThreadID) {
	l.opts.metrics.callerError(l.opts.name, op)
	l.log.Warn("release without matching acquire",
		zap.String("op", op),
		zap.Uint64("thread", uint64(self)))
}

// deadline bounds the total time an acquisition may wait across wake-ups.
type deadline struct {
	clock   clockwork.Clock
	timeout time.Duration
	timer   clockwork.Timer
}

// arm returns the channel that fires when waiting must stop, starting the
// timer on first use. A nil channel never fires.
func (d *deadline) arm() (<-chan time.Time, error) {
	switch {
	case d.timeout < 0:
		return nil, nil
	case d.timeout == 0:
		return nil, errors.Wrap(ErrTimeout, "lock not available")
	}
	if d.timer == nil {
		d.timer = d.clock.NewTimer(d.timeout)
	}
	return d.timer.Chan(), nil
}

func (d *deadline) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
