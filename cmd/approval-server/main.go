// Command approval-server serves the web approval API and polls the
// other approval channels on a schedule, executing whatever gets
// approved.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/ad-autopilot/internal/api"
	"github.com/ignite/ad-autopilot/internal/app"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if err := a.Orchestrator.CheckTokenPermissions(ctx); err != nil {
		logger.Error("token preflight failed", "error", err.Error())
		os.Exit(1)
	}

	router := api.SetupRoutes(api.NewHandlers(a.Ledger))
	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := cron.New()
	spec := fmt.Sprintf("@every %dm", a.Config.Server.PollIntervalMinutes)
	_, err = scheduler.AddFunc(spec, func() {
		runCtx, runCancel := context.WithTimeout(ctx, 30*time.Minute)
		defer runCancel()

		summary, err := a.Orchestrator.RunApproved(runCtx)
		if err != nil {
			logger.Error("scheduled execution run failed", "error", err.Error())
			return
		}
		if summary.Polled > 0 || summary.Executed > 0 {
			logger.Info("scheduled run complete", "summary", summary.String())
		}
		a.ArchiveState(runCtx)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: scheduling poller: %v\n", err)
		os.Exit(1)
	}
	scheduler.Start()

	go func() {
		logger.Info("approval server listening", "addr", addr, "poll_interval_minutes", a.Config.Server.PollIntervalMinutes)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err.Error())
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err.Error())
	}
}
