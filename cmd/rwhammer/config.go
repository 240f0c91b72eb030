package main

import (
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/thetarby/rwlock/internal/hammer"
)

// Config is the stress run configuration. Values come from defaults, then
// the YAML file, then flags given on the command line.
type Config struct {
	Rounds         int           `yaml:"rounds"`
	GOMAXPROCS     int           `yaml:"gomaxprocs"`
	Readers        int           `yaml:"readers"`
	Writers        int           `yaml:"writers"`
	Upgraders      int           `yaml:"upgraders"`
	Iterations     int           `yaml:"iterations"`
	UpgradeTimeout time.Duration `yaml:"upgrade_timeout"`
	Seed           int64         `yaml:"seed"`

	MetricsAddr string        `yaml:"metrics_addr"`
	Linger      time.Duration `yaml:"linger"`

	LogLevel    string `yaml:"log_level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Rounds:         1,
		Readers:        8,
		Writers:        2,
		Upgraders:      4,
		Iterations:     1000,
		UpgradeTimeout: time.Millisecond,
		Seed:           1,
		LogLevel:       "info",
	}
}

// BindFlags registers a flag for every field of c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Rounds, "rounds", c.Rounds, "number of rounds, each on a fresh lock")
	fs.IntVar(&c.GOMAXPROCS, "gomaxprocs", c.GOMAXPROCS, "GOMAXPROCS for the run, 0 keeps the current value")
	fs.IntVar(&c.Readers, "readers", c.Readers, "reader goroutines")
	fs.IntVar(&c.Writers, "writers", c.Writers, "writer goroutines")
	fs.IntVar(&c.Upgraders, "upgraders", c.Upgraders, "read-to-write goroutines")
	fs.IntVar(&c.Iterations, "iterations", c.Iterations, "lock cycles per goroutine")
	fs.DurationVar(&c.UpgradeTimeout, "upgrade-timeout", c.UpgradeTimeout, "timeout of a read-to-write upgrade")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed for upgrade decisions")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve /metrics on this address")
	fs.DurationVar(&c.Linger, "linger", c.Linger, "keep serving metrics this long after the run")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.BoolVar(&c.Development, "development", c.Development, "human friendly logs")
}

// Load reads the YAML file at path into c and then re-applies the flags of
// fs that were set explicitly, so the command line wins over the file.
func (c *Config) Load(path string, fs *pflag.FlagSet) error {
	if path == "" {
		return nil
	}

	set := map[string]string{}
	fs.Visit(func(f *pflag.Flag) { set[f.Name] = f.Value.String() })

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.Wrap(err, "parse config")
	}

	for name, value := range set {
		if err := fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "flag %s", name)
		}
	}
	return nil
}

// Validate checks c before a run.
func (c Config) Validate() error {
	if c.Rounds <= 0 {
		return errors.Errorf("rounds must be positive, got %d", c.Rounds)
	}
	return c.Hammer().Validate()
}

// Hammer returns the per-round worker configuration.
func (c Config) Hammer() hammer.Config {
	return hammer.Config{
		Readers:        c.Readers,
		Writers:        c.Writers,
		Upgraders:      c.Upgraders,
		Iterations:     c.Iterations,
		UpgradeTimeout: c.UpgradeTimeout,
		Seed:           c.Seed,
	}
}

// Logger builds the zap logger described by c.
func (c Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.LogLevel != "" {
		if err := zc.Level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, errors.Wrap(err, "log level")
		}
	}
	return zc.Build()
}
