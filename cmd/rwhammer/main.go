// Command rwhammer stress-tests the reentrant reader/writer lock.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thetarby/rwlock"
	"github.com/thetarby/rwlock/internal/hammer"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := DefaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:          "rwhammer",
		Short:        "Hammer a reentrant reader/writer lock and check mutual exclusion",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Load(configPath, cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cfg.BindFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg Config) error {
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runID, err := uuid.NewV4()
	if err != nil {
		return errors.Wrap(err, "run id")
	}
	log = log.With(zap.Stringer("run", runID))

	if cfg.GOMAXPROCS > 0 {
		defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(cfg.GOMAXPROCS))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics, err := rwlock.NewMetrics(reg)
	if err != nil {
		return errors.Wrap(err, "register metrics")
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: newRouter(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	for round := 1; round <= cfg.Rounds; round++ {
		if err := runRound(ctx, cfg, round, metrics, log); err != nil {
			log.Error("round failed", zap.Int("round", round), zap.Error(err))
			return err
		}
	}

	if cfg.MetricsAddr != "" && cfg.Linger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Linger):
		}
	}
	return nil
}

func runRound(ctx context.Context, cfg Config, round int, metrics *rwlock.Metrics, log *zap.Logger) error {
	l, err := rwlock.New(
		rwlock.WithName(fmt.Sprintf("round-%d", round)),
		rwlock.WithLogger(log),
		rwlock.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := hammer.Run(ctx, l, cfg.Hammer(), log)
	if err != nil {
		return errors.Wrapf(err, "round %d", round)
	}
	if res.Counter != res.Writes+res.Upgrades {
		return errors.Wrapf(hammer.ErrExclusionViolated, "round %d: counter %d, expected %d", round, res.Counter, res.Writes+res.Upgrades)
	}
	if err := l.Destroy(); err != nil {
		return errors.Wrapf(err, "round %d: destroy", round)
	}

	log.Info("round finished",
		zap.Int("round", round),
		zap.Duration("took", time.Since(start)),
		zap.Int64("reads", res.Reads),
		zap.Int64("writes", res.Writes),
		zap.Int64("upgrades", res.Upgrades),
		zap.Int64("upgrade_timeouts", res.UpgradeTimeouts))
	return nil
}

func newRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}
