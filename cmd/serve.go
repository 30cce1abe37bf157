package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/topic-leads/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API and run aggregation on a schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		runs := newRunManager(ctx, env.Pipeline, env.Store)
		defer runs.Wait()

		collector := monitoring.NewCollector(env.Store)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		sched, err := startSchedule(cfg.Server.Schedule, runs)
		if err != nil {
			return err
		}
		if sched != nil {
			defer func() { <-sched.Stop().Done() }()
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(runs, env.Store, env.Registry, collector, cfg.Server.AllowedOrigins, cfg.Monitoring.LookbackWindowHours),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("schedule", cfg.Server.Schedule))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// startSchedule triggers a run on every tick of schedule. An empty schedule
// disables scheduling and returns nil.
func startSchedule(schedule string, runs *runManager) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		id, err := runs.Trigger("")
		if errors.Is(err, errRunActive) {
			zap.L().Info("scheduled run skipped; previous run still active", zap.String("run_id", runs.Active()))
			return
		}
		if err != nil {
			zap.L().Error("scheduled run failed to start", zap.Error(err))
			return
		}
		zap.L().Info("scheduled run started", zap.String("run_id", id))
	}); err != nil {
		return nil, eris.Wrapf(err, "serve: invalid schedule %q", schedule)
	}
	c.Start()
	return c, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
