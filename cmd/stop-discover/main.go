// Command stop-discover evaluates every ad over the recent window,
// protects winners and converting ads, and proposes pause candidates
// for the rest. Candidates land in the approval sheet and chat.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ignite/ad-autopilot/internal/app"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
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

	summary, err := a.Orchestrator.DiscoverStopCandidates(ctx)
	if err != nil {
		logger.Error("stop discovery failed", "error", err.Error())
		a.ArchiveState(ctx)
		os.Exit(1)
	}

	logger.Info("stop discovery complete",
		"adsets_scanned", summary.AdSetsScanned,
		"proposed", summary.Proposed,
		"skipped", summary.Skipped)
	a.ArchiveState(ctx)
}
