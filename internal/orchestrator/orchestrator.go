// Package orchestrator ties discovery, approval collection, and
// execution together into the runs the commands expose.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/ignite/ad-autopilot/internal/approval"
	"github.com/ignite/ad-autopilot/internal/executor"
	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/meta"
	"github.com/ignite/ad-autopilot/internal/metrics"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

// MetaAPI is the slice of the ads platform client discovery uses.
type MetaAPI interface {
	ListAdSets(ctx context.Context, campaignID string) ([]meta.AdSet, error)
	ListAds(ctx context.Context, adSetID string) ([]meta.Ad, error)
	GetInsights(ctx context.Context, entityID string, window meta.Window) (meta.Insights, error)
	GetCreativeThumbnail(ctx context.Context, adID string) (string, error)
	DebugToken(ctx context.Context) (*meta.TokenInfo, error)
}

// ChatPoster is the slice of the chat client the orchestrator uses. A
// nil ChatPoster disables chat announcements.
type ChatPoster interface {
	PostMessage(ctx context.Context, text string) (string, error)
	PostBlocks(ctx context.Context, blocks []slackapi.Block, fallback string) (string, error)
}

// Sheet is the slice of the spreadsheet client the orchestrator uses.
// A nil Sheet disables the spreadsheet channel.
type Sheet interface {
	ReadAllRows(ctx context.Context) ([][]string, error)
	AppendRows(ctx context.Context, rows [][]string) error
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	api        MetaAPI
	ledger     *ledger.Ledger
	thresholds metrics.Thresholds
	campaigns  []string
	channelID  string

	chat  ChatPoster
	sheet Sheet

	readers  []approval.Reader
	executor *executor.Executor
}

// Config assembles an orchestrator's collaborators. Chat and Sheet may
// be nil when the corresponding channel is not configured.
type Config struct {
	API        MetaAPI
	Ledger     *ledger.Ledger
	Thresholds metrics.Thresholds
	Campaigns  []string
	ChannelID  string
	Chat       ChatPoster
	Sheet      Sheet
	Readers    []approval.Reader
	Executor   *executor.Executor
}

// New builds an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		api:        cfg.API,
		ledger:     cfg.Ledger,
		thresholds: cfg.Thresholds,
		campaigns:  cfg.Campaigns,
		channelID:  cfg.ChannelID,
		chat:       cfg.Chat,
		sheet:      cfg.Sheet,
		readers:    cfg.Readers,
		executor:   cfg.Executor,
	}
}

// RequiredScopes are the token permissions every run needs.
var RequiredScopes = []string{"ads_management", "ads_read"}

// CheckTokenPermissions verifies the access token is valid and carries
// the scopes the pipeline mutates with. Runs abort before any platform
// work when the token is short.
func (o *Orchestrator) CheckTokenPermissions(ctx context.Context) error {
	info, err := o.api.DebugToken(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: token preflight failed: %w", err)
	}
	if !info.IsValid {
		return fmt.Errorf("orchestrator: access token is not valid")
	}
	for _, scope := range RequiredScopes {
		if !info.HasScope(scope) {
			return fmt.Errorf("orchestrator: access token lacks %s scope", scope)
		}
	}
	logger.Info("token preflight passed", "scopes", fmt.Sprintf("%v", info.Scopes))
	return nil
}
