// Command compare reports how the most recent duplicated ad set is
// performing against its original over the last week.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ignite/ad-autopilot/internal/app"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
	"github.com/ignite/ad-autopilot/internal/report"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	quiet := flag.Bool("quiet", false, "skip the chat announcement")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.Build(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	comparator := report.New(a.Meta, a.Ledger)
	cmp, err := comparator.CompareLatest(ctx)
	if err != nil {
		switch {
		case errors.Is(err, report.ErrNoHistory):
			fmt.Println("Nothing to compare: no duplication has executed yet.")
			return
		case errors.Is(err, report.ErrTooRecent):
			fmt.Printf("Too early to compare: %v\n", err)
			return
		}
		logger.Error("comparison failed", "error", err.Error())
		os.Exit(1)
	}

	printSide := func(label string, s report.Side) {
		cpa := "n/a"
		if v := s.Snapshot.CPA(); v != nil {
			cpa = fmt.Sprintf("%.2f", *v)
		}
		fmt.Printf("%-9s %s (%s): impressions=%d spend=%.2f conversions=%d cpa=%s\n",
			label, s.Name, s.AdSetID, s.Snapshot.Impressions, s.Snapshot.Spend, s.Snapshot.Conversions, cpa)
	}
	printSide("original", cmp.Original)
	printSide("variant", cmp.Variant)
	switch {
	case cmp.WinnerID == "":
		fmt.Println("verdict: no conversions on either side yet")
	case cmp.ImprovementPct > 0:
		fmt.Printf("verdict: %s ahead by %.1f%% on CPA\n", cmp.WinnerID, cmp.ImprovementPct)
	default:
		fmt.Printf("verdict: %s ahead\n", cmp.WinnerID)
	}

	if !*quiet && a.Slack != nil {
		if _, err := a.Slack.PostBlocks(ctx, report.BuildBlocks(cmp), "Duplication comparison results"); err != nil {
			logger.Warn("posting comparison to chat failed", "error", err.Error())
		}
	}
}
