// Package app wires configuration into the pipeline's collaborators.
// Every command builds the same graph and uses the pieces it needs.
package app

import (
	"context"
	"fmt"

	"github.com/ignite/ad-autopilot/internal/approval"
	"github.com/ignite/ad-autopilot/internal/config"
	"github.com/ignite/ad-autopilot/internal/executor"
	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/meta"
	"github.com/ignite/ad-autopilot/internal/metrics"
	"github.com/ignite/ad-autopilot/internal/orchestrator"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
	"github.com/ignite/ad-autopilot/internal/sheets"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

// App holds the wired collaborators for one process.
type App struct {
	Config       *config.Config
	Meta         *meta.Client
	Slack        *slackapi.Client
	Sheet        *sheets.Client
	Ledger       *ledger.Ledger
	Executor     *executor.Executor
	Orchestrator *orchestrator.Orchestrator
	Archiver     *ledger.S3Archiver
}

// slackNotifier adapts the chat client to the executor's notifier.
type slackNotifier struct {
	chat *slackapi.Client
}

func (n *slackNotifier) Notify(ctx context.Context, text string) error {
	_, err := n.chat.PostMessage(ctx, text)
	return err
}

func thresholds(cfg *config.Config) metrics.Thresholds {
	return metrics.Thresholds{
		ImpressionThreshold: cfg.Thresholds.ImpressionThreshold,
		MinAdCount:          cfg.Thresholds.MinAdCount,
		TopCTRCount:         cfg.Thresholds.TopCTRCount,
		LookbackDays:        cfg.Thresholds.LookbackDays,
		FullHistoryDays:     cfg.Thresholds.FullHistoryDays,
	}
}

// Build loads configuration and wires the full graph. Optional
// collaborators (chat, sheet, archiver) come back nil when not
// configured.
func Build(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Meta.AccessToken == "" {
		return nil, fmt.Errorf("no access token configured (set ACCESS_TOKEN)")
	}
	if len(cfg.Meta.CampaignIDs) == 0 {
		logger.Warn("no campaign ids configured, discovery will scan nothing")
	}

	a := &App{Config: cfg}

	a.Meta = meta.NewClient(meta.Config{
		AccessToken: cfg.Meta.AccessToken,
		BaseURL:     cfg.Meta.BaseURL,
		APIVersion:  cfg.Meta.APIVersion,
		AccountID:   cfg.Meta.AccountID,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelaySeconds,
	})

	a.Ledger = ledger.New(cfg.State.Dir)

	var notifier executor.Notifier
	if cfg.Slack.Enabled() {
		a.Slack = slackapi.NewClient(slackapi.Config{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
			BaseURL:   cfg.Slack.BaseURL,
		})
		notifier = &slackNotifier{chat: a.Slack}
	}

	if cfg.Sheets.Enabled() {
		sheet, err := sheets.NewClient(ctx, sheets.Config{
			CredentialsFile: cfg.Sheets.CredentialsFile,
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			SheetName:       cfg.Sheets.SheetName,
		})
		if err != nil {
			return nil, fmt.Errorf("building sheets client: %w", err)
		}
		a.Sheet = sheet
	}

	th := thresholds(cfg)
	a.Executor = executor.New(a.Meta, a.Ledger, th, cfg.Retry.SubjectTimeout(), notifier)

	var readers []approval.Reader
	if a.Slack != nil {
		readers = append(readers, approval.NewReactionReader(a.Slack, a.Ledger, cfg.Slack.ApproveEmoji, cfg.Slack.RejectEmoji))
	}
	if a.Sheet != nil {
		readers = append(readers, approval.NewSheetReader(a.Sheet, cfg.Sheets.ApprovalColumn, cfg.Sheets.SubjectIDColumn))
	}
	readers = append(readers, approval.NewWebReader(a.Ledger))

	ocfg := orchestrator.Config{
		API:        a.Meta,
		Ledger:     a.Ledger,
		Thresholds: th,
		Campaigns:  cfg.Meta.CampaignIDs,
		ChannelID:  cfg.Slack.ChannelID,
		Readers:    readers,
		Executor:   a.Executor,
	}
	if a.Slack != nil {
		ocfg.Chat = a.Slack
	}
	if a.Sheet != nil {
		ocfg.Sheet = a.Sheet
	}
	a.Orchestrator = orchestrator.New(ocfg)

	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		archiver, err := ledger.NewS3Archiver(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Region, a.Ledger)
		if err != nil {
			return nil, fmt.Errorf("building state archiver: %w", err)
		}
		a.Archiver = archiver
	}

	return a, nil
}

// ArchiveState snapshots the state files if archival is configured.
func (a *App) ArchiveState(ctx context.Context) {
	if a.Archiver == nil {
		return
	}
	if err := a.Archiver.Archive(ctx); err != nil {
		logger.Warn("state archive incomplete", "error", err.Error())
	}
}
