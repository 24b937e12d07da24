package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/srt-batch-translator/internal/config"
	"github.com/MimeLyc/srt-batch-translator/internal/httpapi"
	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/persistence"
	"github.com/MimeLyc/srt-batch-translator/internal/service"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scanScheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job queue and scheduled directory scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg)
		},
	}
}

// serve wires the long-running components and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("another srt-translator instance is already serving %s", cfg.System.DataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release lock %s: %v", cfg.LockPath(), err)
		}
	}()

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := service.New(*cfg, service.WithOutcomeStore(store))
	if err != nil {
		return err
	}

	queue := jobs.NewQueue(cfg.Translate.Workers, store)
	queue.Start(svc.Execute)
	defer queue.Stop()

	settings, err := config.NewRuntimeSettingsStore(cfg.System.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		return fmt.Errorf("runtime settings: %w", err)
	}

	c := cron.New()
	var scheduler *service.Scheduler
	if cfg.ScanEnabled() {
		scheduler = service.NewScheduler(svc, queue, c)
	}

	apply := func(next config.RuntimeSettings) error {
		if err := svc.ApplySettings(next); err != nil {
			return err
		}
		if scheduler != nil {
			return scheduler.Reschedule(ctx, next.CronExpr)
		}
		return nil
	}

	opts := []httpapi.Option{
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithRuntimeSettingsApplier(apply),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
	}
	var scans scanScheduler
	if scheduler != nil {
		opts = append(opts, httpapi.WithScheduler(scheduler))
		scans = scheduler
	} else {
		log.Info("No watch directories configured, scheduled scans are disabled")
	}
	srv := httpapi.NewServer(svc, queue, opts...)

	return runWithComponents(ctx, cfg, scans, c, srv)
}

// runWithComponents schedules scans when a scheduler is given, then serves
// HTTP until ctx is cancelled or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, scheduler scanScheduler, engine cronEngine, srv httpServer) error {
	if scheduler != nil {
		if err := scheduler.Schedule(ctx); err != nil {
			return fmt.Errorf("schedule scans: %w", err)
		}
		engine.Start()
		defer engine.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
