// Package hammer drives a reentrant reader/writer lock from many goroutines
// and checks that it never lets a writer overlap anything else.
package hammer

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thetarby/rwlock"
)

// ErrExclusionViolated is returned when a worker observes a writer running
// alongside another reader or writer.
var ErrExclusionViolated = errors.New("hammer: mutual exclusion violated")

// Readers add 1 to the activity counter, writers add writerWeight.
const writerWeight = 10000

// Config describes one hammer round.
type Config struct {
	Readers    int
	Writers    int
	Upgraders  int
	Iterations int
	// UpgradeTimeout bounds a read-to-write upgrade. Two upgraders that hold
	// read access wait for each other, so it must not be infinite.
	UpgradeTimeout time.Duration
	Seed           int64
}

// Validate reports whether c can be run.
func (c Config) Validate() error {
	switch {
	case c.Readers < 0 || c.Writers < 0 || c.Upgraders < 0:
		return errors.New("worker counts must not be negative")
	case c.Readers+c.Writers+c.Upgraders == 0:
		return errors.New("no workers")
	case c.Iterations <= 0:
		return errors.Errorf("iterations must be positive, got %d", c.Iterations)
	case c.UpgradeTimeout < 0:
		return errors.New("upgrade timeout must not be infinite")
	}
	return nil
}

// Result counts what the workers did.
type Result struct {
	Reads           int64
	Writes          int64
	Upgrades        int64
	UpgradeTimeouts int64
	// Counter is the value of the lock-protected counter after the round;
	// every write and upgrade increments it once.
	Counter int64
}

type run struct {
	lock rwlock.Interface
	cfg  Config
	log  *zap.Logger

	activity int32
	counter  int64 // guarded by lock

	reads, writes, upgrades, upgradeTimeouts atomic.Int64
}

// Run starts the configured workers against lock and waits for them. It
// stops at the first failure.
func Run(ctx context.Context, lock rwlock.Interface, cfg Config, log *zap.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "invalid config")
	}

	r := &run{lock: lock, cfg: cfg, log: log}
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.Writers; i++ {
		id := i
		g.Go(func() error { return r.writer(ctx, id) })
	}
	for i := 0; i < cfg.Readers; i++ {
		id := i
		g.Go(func() error { return r.reader(ctx, id) })
	}
	for i := 0; i < cfg.Upgraders; i++ {
		rnd := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		id := i
		g.Go(func() error { return r.readToWriter(ctx, id, rnd) })
	}

	err := g.Wait()
	res := Result{
		Reads:           r.reads.Load(),
		Writes:          r.writes.Load(),
		Upgrades:        r.upgrades.Load(),
		UpgradeTimeouts: r.upgradeTimeouts.Load(),
		Counter:         r.counter,
	}
	return res, err
}

func (r *run) writer(ctx context.Context, id int) error {
	for i := 0; i < r.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.lock.AcquireWrite(rwlock.Infinite); err != nil {
			return errors.Wrapf(err, "writer %d: acquire", id)
		}
		err := r.write(i)
		if rerr := r.lock.ReleaseWrite(); rerr != nil && err == nil {
			err = rerr
		}
		if err != nil {
			return errors.Wrapf(err, "writer %d", id)
		}
	}
	r.log.Debug("writer done", zap.Int("writer", id))
	return nil
}

func (r *run) write(i int) error {
	if n := atomic.AddInt32(&r.activity, writerWeight); n != writerWeight {
		atomic.AddInt32(&r.activity, -writerWeight)
		return errors.Wrapf(ErrExclusionViolated, "writer saw activity %d", n)
	}
	defer atomic.AddInt32(&r.activity, -writerWeight)

	r.counter++
	r.writes.Add(1)

	switch i % 3 {
	case 1:
		if err := r.lock.AcquireWrite(0); err != nil {
			return errors.Wrap(err, "nested write")
		}
		if err := r.lock.ReleaseWrite(); err != nil {
			return errors.Wrap(err, "nested write release")
		}
		if err := r.lock.QueryWrite(); err != nil {
			return errors.Wrap(err, "write lost after nested release")
		}
	case 2:
		if err := r.lock.AcquireRead(0); err != nil {
			return errors.Wrap(err, "read under write")
		}
		if err := r.lock.ReleaseRead(); err != nil {
			return errors.Wrap(err, "read under write release")
		}
	}
	return nil
}

func (r *run) reader(ctx context.Context, id int) error {
	for i := 0; i < r.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.lock.AcquireRead(rwlock.Infinite); err != nil {
			return errors.Wrapf(err, "reader %d: acquire", id)
		}
		err := r.read(i)
		if rerr := r.lock.ReleaseRead(); rerr != nil && err == nil {
			err = rerr
		}
		if err != nil {
			return errors.Wrapf(err, "reader %d", id)
		}
	}
	r.log.Debug("reader done", zap.Int("reader", id))
	return nil
}

func (r *run) read(i int) error {
	n := atomic.AddInt32(&r.activity, 1)
	defer atomic.AddInt32(&r.activity, -1)
	if n < 1 || n >= writerWeight {
		return errors.Wrapf(ErrExclusionViolated, "reader saw activity %d", n)
	}
	r.reads.Add(1)

	if i%2 == 0 {
		if err := r.lock.AcquireRead(0); err != nil {
			return errors.Wrap(err, "nested read")
		}
		if err := r.lock.ReleaseRead(); err != nil {
			return errors.Wrap(err, "nested read release")
		}
		if err := r.lock.QueryRead(); err != nil {
			return errors.Wrap(err, "read lost after nested release")
		}
	}
	return nil
}

func (r *run) readToWriter(ctx context.Context, id int, rnd *rand.Rand) error {
	for i := 0; i < r.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.lock.AcquireRead(rwlock.Infinite); err != nil {
			return errors.Wrapf(err, "upgrader %d: acquire", id)
		}
		err := r.maybeUpgrade(rnd.Intn(2) == 0)
		if rerr := r.lock.ReleaseRead(); rerr != nil && err == nil {
			err = rerr
		}
		if err != nil {
			return errors.Wrapf(err, "upgrader %d", id)
		}
	}
	r.log.Debug("upgrader done", zap.Int("upgrader", id))
	return nil
}

func (r *run) maybeUpgrade(upgrade bool) error {
	n := atomic.AddInt32(&r.activity, 1)
	defer atomic.AddInt32(&r.activity, -1)
	if n < 1 || n >= writerWeight {
		return errors.Wrapf(ErrExclusionViolated, "upgrader saw activity %d", n)
	}
	r.reads.Add(1)
	if !upgrade {
		return nil
	}

	firstRead := r.counter
	err := r.lock.AcquireWrite(r.cfg.UpgradeTimeout)
	switch {
	case errors.Is(err, rwlock.ErrTimeout):
		r.upgradeTimeouts.Add(1)
		return nil
	case err != nil:
		return errors.Wrap(err, "upgrade")
	}

	err = r.upgraded(firstRead)
	if rerr := r.lock.ReleaseWrite(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func (r *run) upgraded(firstRead int64) error {
	n := atomic.AddInt32(&r.activity, writerWeight)
	defer atomic.AddInt32(&r.activity, -writerWeight)
	if n != writerWeight+1 {
		return errors.Wrapf(ErrExclusionViolated, "upgraded writer saw activity %d", n)
	}
	if firstRead != r.counter {
		return errors.Wrap(ErrExclusionViolated, "counter changed between read and upgrade")
	}
	r.counter++
	r.upgrades.Add(1)
	return nil
}
