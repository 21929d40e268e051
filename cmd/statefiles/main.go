// Command statefiles inspects the local state files: sizes, ages,
// record counts, and a status breakdown of the approval ledger. It is
// read-only and needs no credentials.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/ad-autopilot/internal/config"
	"github.com/ignite/ad-autopilot/internal/ledger"
)

func describeFile(dir, name string) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("%-28s missing\n", name)
			return
		}
		fmt.Printf("%-28s error: %v\n", name, err)
		return
	}
	fmt.Printf("%-28s %6d bytes  modified %s (%s ago)\n",
		name, info.Size(),
		info.ModTime().Format("2006-01-02 15:04:05"),
		time.Since(info.ModTime()).Round(time.Minute))
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	samples := flag.Int("samples", 3, "number of recent records to show per file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	dir := cfg.State.Dir

	fmt.Printf("state directory: %s\n\n", dir)
	for _, name := range []string{ledger.ApprovalsFile, ledger.HistoryFile, ledger.ReactionsFile} {
		describeFile(dir, name)
	}

	l := ledger.New(dir)

	actions, err := l.List("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	byStatus := make(map[ledger.Status]int)
	for _, a := range actions {
		byStatus[a.Status]++
	}
	fmt.Printf("\ncandidate actions: %d\n", len(actions))
	for _, status := range []ledger.Status{
		ledger.StatusPending, ledger.StatusApproved, ledger.StatusRejected,
		ledger.StatusExecuted, ledger.StatusStopped, ledger.StatusError,
	} {
		if n := byStatus[status]; n > 0 {
			fmt.Printf("  %-10s %d\n", status, n)
		}
	}
	for i := len(actions) - 1; i >= 0 && i >= len(actions)-*samples; i-- {
		a := actions[i]
		fmt.Printf("  [%s] %s %s %s (%s)\n", a.Status, a.ActionKind, a.SubjectID, a.SubjectName, a.ProposedAt.Format("2006-01-02"))
	}

	history, err := l.History()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nexecuted mutations: %d\n", len(history))
	for i := len(history) - 1; i >= 0 && i >= len(history)-*samples; i-- {
		rec := history[i]
		fmt.Printf("  %s %s -> %s (%s)\n", rec.ActionKind, rec.OriginalID, rec.NewID, rec.ExecutedAt.Format("2006-01-02"))
	}

	refs, err := l.ReactionRefs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\ntracked approval messages: %d\n", len(refs))
}
