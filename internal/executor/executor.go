// Package executor performs the approved mutations against the ads
// platform. Every mutation runs exactly once: preconditions are
// rechecked live immediately before the change, and terminal actions
// are never touched again.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/meta"
	"github.com/ignite/ad-autopilot/internal/metrics"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

// MetaAPI is the slice of the ads platform client the executor uses.
type MetaAPI interface {
	ListAds(ctx context.Context, adSetID string) ([]meta.Ad, error)
	GetInsights(ctx context.Context, entityID string, window meta.Window) (meta.Insights, error)
	GetAdSet(ctx context.Context, adSetID string) (*meta.AdSetDetail, error)
	CreateAdSet(ctx context.Context, p meta.CreateAdSetParams) (string, error)
	CopyAd(ctx context.Context, adID, targetAdSetID string) (string, error)
	GetAdStatus(ctx context.Context, adID string) (meta.AdStatus, error)
	UpdateStatus(ctx context.Context, entityID, status string) error
}

// Notifier announces execution outcomes. A nil notifier is allowed.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Result is the outcome of executing one candidate action.
type Result struct {
	ActionID string
	Status   ledger.Status
	Note     string
}

// Executor drives approved candidate actions to a terminal status.
type Executor struct {
	api        MetaAPI
	ledger     *ledger.Ledger
	thresholds metrics.Thresholds
	timeout    time.Duration
	notifier   Notifier
}

// New builds an executor. timeout bounds the platform work for one
// subject; zero means 300 seconds.
func New(api MetaAPI, l *ledger.Ledger, thresholds metrics.Thresholds, timeout time.Duration, notifier Notifier) *Executor {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Executor{api: api, ledger: l, thresholds: thresholds, timeout: timeout, notifier: notifier}
}

// Execute runs one approved action to completion. Actions already in a
// terminal status are returned as-is without touching the platform.
func (e *Executor) Execute(ctx context.Context, c ledger.CandidateAction) (Result, error) {
	current, err := e.ledger.Get(c.ID)
	if err != nil {
		return Result{}, err
	}
	if current.Status.Terminal() {
		logger.Info("action already processed, skipping", "action_id", c.ID, "status", string(current.Status))
		return Result{ActionID: c.ID, Status: current.Status, Note: "already processed"}, nil
	}
	if current.Status != ledger.StatusApproved {
		return Result{}, fmt.Errorf("executor: action %s is %s, not approved", c.ID, current.Status)
	}

	subjectCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var status ledger.Status
	var note string
	switch current.ActionKind {
	case ledger.ActionDuplicateAdSet:
		status, note, err = e.duplicateAdSet(subjectCtx, current)
	case ledger.ActionPauseAd:
		status, note, err = e.pauseAd(subjectCtx, current)
	case ledger.ActionCopyAd:
		status, note, err = e.copyAd(subjectCtx, current)
	default:
		return Result{}, fmt.Errorf("executor: unknown action kind %q", current.ActionKind)
	}

	if err != nil {
		status = ledger.StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			note = fmt.Sprintf("timed out after %s", e.timeout)
		} else {
			note = err.Error()
		}
		logger.Error("action execution failed", "action_id", c.ID, "subject_id", current.SubjectID,
			"kind", string(current.ActionKind), "error", note)
	}

	if _, terr := e.ledger.Transition(ctx, c.ID, status, note); terr != nil {
		return Result{}, fmt.Errorf("executor: recording outcome for %s: %w", c.ID, terr)
	}

	e.notify(ctx, current, status, note)
	return Result{ActionID: c.ID, Status: status, Note: note}, nil
}

func (e *Executor) notify(ctx context.Context, c ledger.CandidateAction, status ledger.Status, note string) {
	if e.notifier == nil {
		return
	}
	text := fmt.Sprintf("%s %s for %s: %s", c.ActionKind, status, c.SubjectID, note)
	if note == "" {
		text = fmt.Sprintf("%s %s for %s", c.ActionKind, status, c.SubjectID)
	}
	if err := e.notifier.Notify(ctx, text); err != nil {
		logger.Warn("outcome notification failed", "action_id", c.ID, "error", err.Error())
	}
}

// duplicateAdSet re-validates the underperformance picture live, then
// creates a sibling ad set and copies the qualifying low-impression
// ads into it for a fresh delivery attempt. The rest of the ads stay
// behind in the original set.
func (e *Executor) duplicateAdSet(ctx context.Context, c ledger.CandidateAction) (ledger.Status, string, error) {
	ads, err := e.api.ListAds(ctx, c.SubjectID)
	if err != nil {
		return "", "", fmt.Errorf("listing ads in %s: %w", c.SubjectID, err)
	}

	window := meta.RollingWindow(e.thresholds.FullHistoryDays)
	var qualifying []meta.Ad
	remaining := 0
	for _, ad := range ads {
		in, err := e.api.GetInsights(ctx, ad.ID, window)
		if err != nil {
			return "", "", fmt.Errorf("insights for ad %s: %w", ad.ID, err)
		}
		snapshot := metrics.SnapshotFromInsights(in, e.thresholds.FullHistoryDays)
		if e.thresholds.Classify(snapshot) == metrics.ClassLowImpression {
			qualifying = append(qualifying, ad)
			continue
		}
		remaining++
	}

	if len(qualifying) < e.thresholds.MinAdCount {
		note := fmt.Sprintf("only %d of %d ads qualify (minimum %d)", len(qualifying), len(ads), e.thresholds.MinAdCount)
		logger.Info("duplication preconditions no longer hold", "adset_id", c.SubjectID, "note", note)
		return ledger.StatusStopped, note, nil
	}
	if remaining == 0 {
		note := "no ads would remain in the original set"
		logger.Info("duplication preconditions no longer hold", "adset_id", c.SubjectID, "note", note)
		return ledger.StatusStopped, note, nil
	}

	detail, err := e.api.GetAdSet(ctx, c.SubjectID)
	if err != nil {
		return "", "", fmt.Errorf("fetching ad set %s: %w", c.SubjectID, err)
	}

	newID, err := e.api.CreateAdSet(ctx, meta.CreateAdSetParams{
		Name:             detail.Name + "V2",
		CampaignID:       detail.CampaignID,
		Targeting:        detail.Targeting,
		BillingEvent:     detail.BillingEvent,
		OptimizationGoal: detail.OptimizationGoal,
		DailyBudget:      detail.DailyBudget,
		LifetimeBudget:   detail.LifetimeBudget,
		BidAmount:        detail.BidAmount,
	})
	if err != nil {
		return "", "", fmt.Errorf("creating ad set %sV2: %w", detail.Name, err)
	}
	logger.Info("created duplicate ad set", "source_adset_id", c.SubjectID, "new_adset_id", newID)

	var copied []ledger.CopiedAd
	var failures int
	for _, ad := range qualifying {
		copyID, err := e.api.CopyAd(ctx, ad.ID, newID)
		if err != nil {
			failures++
			logger.Warn("ad copy failed", "ad_id", ad.ID, "new_adset_id", newID, "error", err.Error())
			continue
		}
		copied = append(copied, ledger.CopiedAd{SourceAdID: ad.ID, NewAdID: copyID})
	}
	if len(copied) == 0 {
		return "", "", fmt.Errorf("all %d ad copies into %s failed", len(qualifying), newID)
	}

	rec := ledger.MutationRecord{
		ActionID:   c.ID,
		ActionKind: ledger.ActionDuplicateAdSet,
		OriginalID: c.SubjectID,
		NewID:      newID,
		CopiedAds:  copied,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.ledger.AppendMutation(ctx, rec); err != nil {
		return "", "", err
	}

	note := fmt.Sprintf("copied %d/%d ads into %s", len(copied), len(qualifying), newID)
	if failures > 0 {
		note += fmt.Sprintf(" (%d failed)", failures)
	}
	return ledger.StatusExecuted, note, nil
}

// pauseAd pauses a running ad. An ad that is already paused or
// archived is left alone and the action closes as stopped.
func (e *Executor) pauseAd(ctx context.Context, c ledger.CandidateAction) (ledger.Status, string, error) {
	status, err := e.api.GetAdStatus(ctx, c.SubjectID)
	if err != nil {
		return "", "", fmt.Errorf("fetching status of ad %s: %w", c.SubjectID, err)
	}
	switch status.Effective() {
	case "PAUSED", "ARCHIVED":
		note := fmt.Sprintf("ad already %s", status.Effective())
		logger.Info("pause is a no-op", "ad_id", c.SubjectID, "effective_status", status.Effective())
		return ledger.StatusStopped, note, nil
	}

	if err := e.api.UpdateStatus(ctx, c.SubjectID, "PAUSED"); err != nil {
		return "", "", fmt.Errorf("pausing ad %s: %w", c.SubjectID, err)
	}

	rec := ledger.MutationRecord{
		ActionID:   c.ID,
		ActionKind: ledger.ActionPauseAd,
		OriginalID: c.SubjectID,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.ledger.AppendMutation(ctx, rec); err != nil {
		return "", "", err
	}
	logger.Info("ad paused", "ad_id", c.SubjectID)
	return ledger.StatusExecuted, "ad paused", nil
}

// copyAd copies a single ad into the target ad set.
func (e *Executor) copyAd(ctx context.Context, c ledger.CandidateAction) (ledger.Status, string, error) {
	if c.TargetID == "" {
		return "", "", fmt.Errorf("copy for ad %s has no target ad set", c.SubjectID)
	}

	newID, err := e.api.CopyAd(ctx, c.SubjectID, c.TargetID)
	if err != nil {
		return "", "", fmt.Errorf("copying ad %s into %s: %w", c.SubjectID, c.TargetID, err)
	}

	rec := ledger.MutationRecord{
		ActionID:   c.ID,
		ActionKind: ledger.ActionCopyAd,
		OriginalID: c.SubjectID,
		NewID:      newID,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.ledger.AppendMutation(ctx, rec); err != nil {
		return "", "", err
	}
	logger.Info("ad copied", "ad_id", c.SubjectID, "new_ad_id", newID, "target_adset_id", c.TargetID)
	return ledger.StatusExecuted, fmt.Sprintf("copied as %s", newID), nil
}
