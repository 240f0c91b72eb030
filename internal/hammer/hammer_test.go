package hammer

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/thetarby/rwlock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func hammerRWLock(t *testing.T, gomaxprocs, numReaders, iterations int) {
	runtime.GOMAXPROCS(gomaxprocs)

	l, err := rwlock.New()
	require.NoError(t, err)

	cfg := Config{
		Readers:        numReaders / 2,
		Writers:        2,
		Upgraders:      numReaders - numReaders/2,
		Iterations:     iterations,
		UpgradeTimeout: time.Millisecond,
		Seed:           int64(gomaxprocs*1000 + numReaders),
	}
	res, err := Run(context.Background(), l, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, int64(cfg.Writers*iterations), res.Writes)
	assert.Equal(t, int64((cfg.Readers+cfg.Upgraders)*iterations), res.Reads)
	assert.Equal(t, res.Writes+res.Upgrades, res.Counter)

	s := l.Stats()
	assert.Equal(t, 0, s.Readers)
	assert.Equal(t, 0, s.Writers)
	require.NoError(t, l.Destroy())
}

func TestRWLockHammer(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(-1))
	n := 200
	if testing.Short() {
		n = 5
	}
	for _, tc := range []struct{ procs, readers int }{
		{1, 1}, {1, 3}, {1, 10},
		{4, 1}, {4, 3}, {4, 10},
		{10, 1}, {10, 3}, {10, 10}, {10, 5},
		{100, 5}, {100, 50},
	} {
		t.Run(fmt.Sprintf("procs=%d/readers=%d", tc.procs, tc.readers), func(t *testing.T) {
			hammerRWLock(t, tc.procs, tc.readers, n)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{name: "no workers", cfg: Config{Iterations: 1}},
		{name: "negative", cfg: Config{Readers: -1, Writers: 1, Iterations: 1}},
		{name: "no iterations", cfg: Config{Writers: 1}},
		{name: "infinite upgrade", cfg: Config{Upgraders: 2, Iterations: 1, UpgradeTimeout: rwlock.Infinite}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.cfg.Validate())
		})
	}
	require.NoError(t, Config{Writers: 1, Iterations: 1}.Validate())
}

// brokenLock grants every request and yields, so workers collide.
type brokenLock struct{}

func (brokenLock) AcquireRead(time.Duration) error  { runtime.Gosched(); return nil }
func (brokenLock) ReleaseRead() error               { return nil }
func (brokenLock) QueryRead() error                 { return nil }
func (brokenLock) AcquireWrite(time.Duration) error { runtime.Gosched(); return nil }
func (brokenLock) ReleaseWrite() error              { return nil }
func (brokenLock) QueryWrite() error                { return nil }

func TestDetectsViolation(t *testing.T) {
	cfg := Config{Readers: 4, Writers: 4, Iterations: 1000}
	_, err := Run(context.Background(), brokenLock{}, cfg, zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrExclusionViolated)
}
