package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/meta"
	"github.com/ignite/ad-autopilot/internal/metrics"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

// DiscoverySummary reports what one discovery run found.
type DiscoverySummary struct {
	AdSetsScanned int
	Proposed      int
	Skipped       int
}

// adSetEvaluation is one ad set's classified ads.
type adSetEvaluation struct {
	ads       []meta.Ad
	scored    []metrics.Scored
	lowIDs    map[string]bool
	protected map[string]bool
	remain    int
}

func (o *Orchestrator) evaluateAdSet(ctx context.Context, adSetID string, windowDays int) (*adSetEvaluation, error) {
	ads, err := o.api.ListAds(ctx, adSetID)
	if err != nil {
		return nil, fmt.Errorf("listing ads in %s: %w", adSetID, err)
	}

	window := meta.RollingWindow(windowDays)
	eval := &adSetEvaluation{
		ads:       ads,
		lowIDs:    make(map[string]bool),
		protected: make(map[string]bool),
	}
	for _, ad := range ads {
		in, err := o.api.GetInsights(ctx, ad.ID, window)
		if err != nil {
			return nil, fmt.Errorf("insights for ad %s: %w", ad.ID, err)
		}
		snapshot := metrics.SnapshotFromInsights(in, windowDays)
		eval.scored = append(eval.scored, metrics.Scored{AdID: ad.ID, AdName: ad.Name, Snapshot: snapshot})
		switch o.thresholds.Classify(snapshot) {
		case metrics.ClassLowImpression:
			eval.lowIDs[ad.ID] = true
		case metrics.ClassProtected:
			eval.protected[ad.ID] = true
			eval.remain++
		default:
			eval.remain++
		}
	}
	return eval, nil
}

// DiscoverDuplications scans every configured campaign for ad sets
// whose underdelivering ads meet the duplication preconditions, and
// proposes one duplicate_adset candidate per qualifying ad set.
func (o *Orchestrator) DiscoverDuplications(ctx context.Context) (DiscoverySummary, error) {
	var summary DiscoverySummary
	for _, campaignID := range o.campaigns {
		adSets, err := o.api.ListAdSets(ctx, campaignID)
		if err != nil {
			return summary, fmt.Errorf("orchestrator: listing ad sets in campaign %s: %w", campaignID, err)
		}

		for _, adSet := range adSets {
			summary.AdSetsScanned++

			done, err := o.ledger.AlreadyProcessed(adSet.ID, ledger.ActionDuplicateAdSet)
			if err != nil {
				return summary, err
			}
			if done {
				logger.Debug("ad set already duplicated, skipping", "adset_id", adSet.ID)
				summary.Skipped++
				continue
			}

			eval, err := o.evaluateAdSet(ctx, adSet.ID, o.thresholds.FullHistoryDays)
			if err != nil {
				return summary, fmt.Errorf("orchestrator: %w", err)
			}
			if len(eval.lowIDs) < o.thresholds.MinAdCount {
				o.announce(ctx, fmt.Sprintf("Skipping %s (%s): only %d of %d ads are under %d impressions (minimum %d).",
					adSet.Name, adSet.ID, len(eval.lowIDs), len(eval.ads),
					o.thresholds.ImpressionThreshold, o.thresholds.MinAdCount))
				summary.Skipped++
				continue
			}
			if eval.remain == 0 {
				o.announce(ctx, fmt.Sprintf("Skipping %s (%s): every ad is under the impression threshold, nothing would remain in the original set.",
					adSet.Name, adSet.ID))
				summary.Skipped++
				continue
			}

			snapshot := aggregateSnapshot(eval.scored, o.thresholds.FullHistoryDays)
			candidate, err := o.ledger.Propose(ctx, ledger.CandidateAction{
				SubjectID:   adSet.ID,
				SubjectName: adSet.Name,
				ActionKind:  ledger.ActionDuplicateAdSet,
				Snapshot:    snapshot,
				Reason:      fmt.Sprintf("%d of %d ads under %d impressions", len(eval.lowIDs), len(eval.ads), o.thresholds.ImpressionThreshold),
			})
			if err != nil {
				if errors.Is(err, ledger.ErrAlreadyTracked) {
					logger.Debug("ad set already has a live candidate", "adset_id", adSet.ID)
					summary.Skipped++
					continue
				}
				return summary, err
			}

			logger.Info("duplication candidate proposed",
				"action_id", candidate.ID, "adset_id", adSet.ID, "adset_name", adSet.Name,
				"low_ads", len(eval.lowIDs), "remaining_ads", eval.remain)
			summary.Proposed++

			if err := o.requestApproval(ctx, candidate, len(eval.lowIDs), len(eval.ads)); err != nil {
				logger.Warn("approval request failed", "action_id", candidate.ID, "error", err.Error())
			}
		}
	}

	if summary.Proposed == 0 {
		o.announce(ctx, "Ad set scan complete: no duplication candidates found.")
	}
	return summary, nil
}

func aggregateSnapshot(scored []metrics.Scored, windowDays int) metrics.Snapshot {
	var total metrics.Snapshot
	total.WindowDays = windowDays
	for _, s := range scored {
		total.Impressions += s.Snapshot.Impressions
		total.Clicks += s.Snapshot.Clicks
		total.Spend += s.Snapshot.Spend
		total.Conversions += s.Snapshot.Conversions
	}
	return total
}

// requestApproval posts the approval request to chat and remembers the
// message so reactions can be read back later.
func (o *Orchestrator) requestApproval(ctx context.Context, c ledger.CandidateAction, lowCount, totalAds int) error {
	if o.chat == nil {
		return nil
	}

	blocks := []slackapi.Block{
		slackapi.Header("Ad set duplication needs approval"),
		slackapi.FieldSection(
			fmt.Sprintf("*Ad set:*\n%s", c.SubjectName),
			fmt.Sprintf("*Ad set ID:*\n%s", c.SubjectID),
			fmt.Sprintf("*Underdelivering ads:*\n%d of %d", lowCount, totalAds),
			fmt.Sprintf("*Reason:*\n%s", c.Reason),
		),
		slackapi.Divider(),
		slackapi.Section("React :white_check_mark: to approve or :x: to reject."),
	}
	fallback := fmt.Sprintf("Approval needed: duplicate ad set %s (%s)", c.SubjectName, c.SubjectID)

	ts, err := o.chat.PostBlocks(ctx, blocks, fallback)
	if err != nil {
		return err
	}
	return o.ledger.SaveReactionRef(ctx, ledger.ReactionRef{
		ActionID:  c.ID,
		ChannelID: o.channelID,
		MessageTS: ts,
		PostedAt:  c.ProposedAt,
	})
}

// DiscoverStopCandidates evaluates each ad set's ads over the lookback
// window, protects winners and converting ads, and proposes pause_ad
// candidates for the rest of the underdeliverers. Candidates land in
// the spreadsheet for review and a chat notice goes out per candidate.
func (o *Orchestrator) DiscoverStopCandidates(ctx context.Context) (DiscoverySummary, error) {
	var summary DiscoverySummary
	var sheetRows [][]string

	for _, campaignID := range o.campaigns {
		adSets, err := o.api.ListAdSets(ctx, campaignID)
		if err != nil {
			return summary, fmt.Errorf("orchestrator: listing ad sets in campaign %s: %w", campaignID, err)
		}

		for _, adSet := range adSets {
			summary.AdSetsScanned++

			eval, err := o.evaluateAdSet(ctx, adSet.ID, o.thresholds.LookbackDays)
			if err != nil {
				return summary, fmt.Errorf("orchestrator: %w", err)
			}
			winners := o.thresholds.SelectWinners(eval.scored)

			for _, scored := range eval.scored {
				// Winners keep running, converting ads are never
				// touched; everything else is a stop candidate.
				if winners[scored.AdID] || eval.protected[scored.AdID] {
					continue
				}

				candidate, err := o.ledger.Propose(ctx, ledger.CandidateAction{
					SubjectID:   scored.AdID,
					SubjectName: scored.AdName,
					ActionKind:  ledger.ActionPauseAd,
					Snapshot:    scored.Snapshot,
					Reason: fmt.Sprintf("not a winner over %d days (%d impressions, no conversions)",
						o.thresholds.LookbackDays, scored.Snapshot.Impressions),
				})
				if err != nil {
					if errors.Is(err, ledger.ErrAlreadyTracked) {
						summary.Skipped++
						continue
					}
					return summary, err
				}
				summary.Proposed++
				logger.Info("stop candidate proposed",
					"action_id", candidate.ID, "ad_id", scored.AdID, "ad_name", scored.AdName,
					"impressions", scored.Snapshot.Impressions)

				sheetRows = append(sheetRows, []string{
					scored.AdID,
					scored.AdName,
					fmt.Sprintf("%d", scored.Snapshot.Impressions),
					fmt.Sprintf("%.2f", scored.Snapshot.Spend),
					"",
				})

				o.announceStopCandidate(ctx, candidate)
			}
		}
	}

	if len(sheetRows) > 0 {
		if err := o.appendSheetRows(ctx, sheetRows); err != nil {
			logger.Warn("writing candidates to sheet failed", "error", err.Error())
		}
	}
	if summary.Proposed == 0 {
		o.announce(ctx, "Ad scan complete: no stop candidates found.")
	}
	return summary, nil
}

var sheetHeader = []string{"Ad ID", "Name", "Impressions", "Spend", "Approval"}

// appendSheetRows writes candidate rows, bootstrapping the header row
// on a fresh sheet.
func (o *Orchestrator) appendSheetRows(ctx context.Context, rows [][]string) error {
	if o.sheet == nil {
		return nil
	}
	existing, err := o.sheet.ReadAllRows(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		rows = append([][]string{sheetHeader}, rows...)
	}
	return o.sheet.AppendRows(ctx, rows)
}

func (o *Orchestrator) announceStopCandidate(ctx context.Context, c ledger.CandidateAction) {
	if o.chat == nil {
		return
	}

	thumbnail := ""
	if url, err := o.api.GetCreativeThumbnail(ctx, c.SubjectID); err == nil && url != "" {
		thumbnail = fmt.Sprintf("\n<%s|creative preview>", url)
	}

	blocks := []slackapi.Block{
		slackapi.Header("Stop candidate"),
		slackapi.FieldSection(
			fmt.Sprintf("*Ad:*\n%s", c.SubjectName),
			fmt.Sprintf("*Ad ID:*\n%s", c.SubjectID),
			fmt.Sprintf("*Impressions:*\n%d", c.Snapshot.Impressions),
			fmt.Sprintf("*Spend:*\n%.2f", c.Snapshot.Spend),
		),
		slackapi.Section(fmt.Sprintf("%s%s\nWrite YES in the approval sheet or react here to decide.", c.Reason, thumbnail)),
	}
	fallback := fmt.Sprintf("Stop candidate: %s (%s)", c.SubjectName, c.SubjectID)

	ts, err := o.chat.PostBlocks(ctx, blocks, fallback)
	if err != nil {
		logger.Warn("stop candidate notice failed", "action_id", c.ID, "error", err.Error())
		return
	}
	if err := o.ledger.SaveReactionRef(ctx, ledger.ReactionRef{
		ActionID:  c.ID,
		ChannelID: o.channelID,
		MessageTS: ts,
		PostedAt:  c.ProposedAt,
	}); err != nil {
		logger.Warn("saving reaction reference failed", "action_id", c.ID, "error", err.Error())
	}
}

func (o *Orchestrator) announce(ctx context.Context, text string) {
	if o.chat == nil {
		return
	}
	if _, err := o.chat.PostMessage(ctx, text); err != nil {
		logger.Warn("chat announcement failed", "error", err.Error())
	}
}
