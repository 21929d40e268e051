// Command stop collects approval decisions and pauses every approved
// stop candidate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ignite/ad-autopilot/internal/app"
	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	a, err := app.Build(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if err := a.Orchestrator.CheckTokenPermissions(ctx); err != nil {
		logger.Error("aborting before any platform work", "error", err.Error())
		os.Exit(1)
	}

	summary, err := a.Orchestrator.RunApproved(ctx, ledger.ActionPauseAd)
	a.ArchiveState(ctx)
	fmt.Println(summary.String())
	if err != nil {
		logger.Error("stop run failed", "error", err.Error())
		os.Exit(1)
	}
	if summary.Failed() {
		os.Exit(1)
	}
}
