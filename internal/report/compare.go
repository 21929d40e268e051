// Package report compares an original ad set against its duplicate
// once both have had time to run, and renders the outcome for chat.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/meta"
	"github.com/ignite/ad-autopilot/internal/metrics"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

var (
	// ErrNoHistory is returned when no duplication has ever executed.
	ErrNoHistory = errors.New("report: no duplication in history")
	// ErrTooRecent is returned when the duplicate has not run long
	// enough for a fair comparison.
	ErrTooRecent = errors.New("report: duplication too recent to compare")
)

// MinimumAge is how long a duplicate must run before comparison.
const MinimumAge = 7 * 24 * time.Hour

// CompareWindowDays is the insights window used for both sides.
const CompareWindowDays = 7

// MetaAPI is the slice of the platform client the comparator uses.
type MetaAPI interface {
	GetInsights(ctx context.Context, entityID string, window meta.Window) (meta.Insights, error)
	GetName(ctx context.Context, entityID string) (string, error)
}

// Side is one ad set's share of a comparison.
type Side struct {
	AdSetID  string
	Name     string
	Snapshot metrics.Snapshot
}

// Comparison is the outcome of comparing original and duplicate.
type Comparison struct {
	Original Side
	Variant  Side
	// WinnerID is the ad set with the lower CPA, or empty when
	// neither side converted.
	WinnerID string
	// ImprovementPct is how much cheaper the winner's CPA is,
	// relative to the loser. Zero when there is no winner.
	ImprovementPct float64
	ExecutedAt     time.Time
}

// Comparator builds comparisons from the mutation history.
type Comparator struct {
	api    MetaAPI
	ledger *ledger.Ledger
	now    func() time.Time
}

// New builds a comparator.
func New(api MetaAPI, l *ledger.Ledger) *Comparator {
	return &Comparator{api: api, ledger: l, now: time.Now}
}

// SetClock overrides the time source (useful for testing).
func (c *Comparator) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Comparator) side(ctx context.Context, adSetID string) (Side, error) {
	name, err := c.api.GetName(ctx, adSetID)
	if err != nil {
		name = adSetID
	}
	in, err := c.api.GetInsights(ctx, adSetID, meta.RollingWindow(CompareWindowDays))
	if err != nil {
		return Side{}, fmt.Errorf("report: insights for %s: %w", adSetID, err)
	}
	return Side{
		AdSetID:  adSetID,
		Name:     name,
		Snapshot: metrics.SnapshotFromInsights(in, CompareWindowDays),
	}, nil
}

// CompareLatest compares the most recent executed duplication's
// original and duplicate ad sets over the last week.
func (c *Comparator) CompareLatest(ctx context.Context) (*Comparison, error) {
	history, err := c.ledger.History()
	if err != nil {
		return nil, err
	}

	var latest *ledger.MutationRecord
	for i := range history {
		rec := &history[i]
		if rec.ActionKind != ledger.ActionDuplicateAdSet || rec.NewID == "" {
			continue
		}
		if latest == nil || rec.ExecutedAt.After(latest.ExecutedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrNoHistory
	}
	if age := c.now().Sub(latest.ExecutedAt); age < MinimumAge {
		return nil, fmt.Errorf("%w: executed %s ago, need %s", ErrTooRecent, age.Round(time.Hour), MinimumAge)
	}

	original, err := c.side(ctx, latest.OriginalID)
	if err != nil {
		return nil, err
	}
	variant, err := c.side(ctx, latest.NewID)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Original: original, Variant: variant, ExecutedAt: latest.ExecutedAt}
	origCPA, varCPA := original.Snapshot.CPA(), variant.Snapshot.CPA()
	switch {
	case origCPA != nil && varCPA != nil:
		if *varCPA < *origCPA {
			cmp.WinnerID = variant.AdSetID
			cmp.ImprovementPct = (*origCPA - *varCPA) / *origCPA * 100
		} else if *origCPA < *varCPA {
			cmp.WinnerID = original.AdSetID
			cmp.ImprovementPct = (*varCPA - *origCPA) / *varCPA * 100
		}
	case origCPA != nil:
		cmp.WinnerID = original.AdSetID
	case varCPA != nil:
		cmp.WinnerID = variant.AdSetID
	}
	return cmp, nil
}

func formatCPA(s metrics.Snapshot) string {
	if cpa := s.CPA(); cpa != nil {
		return fmt.Sprintf("%.2f", *cpa)
	}
	return "n/a"
}

// BuildBlocks renders a comparison as a Block Kit message.
func BuildBlocks(cmp *Comparison) []slackapi.Block {
	sideFields := func(s Side) []string {
		return []string{
			fmt.Sprintf("*%s* (%s)", s.Name, s.AdSetID),
			fmt.Sprintf("Impressions: %d | Spend: %.2f | Conversions: %d | CPA: %s",
				s.Snapshot.Impressions, s.Snapshot.Spend, s.Snapshot.Conversions, formatCPA(s.Snapshot)),
		}
	}

	verdict := "No conversions on either side yet."
	if cmp.WinnerID != "" {
		winner := cmp.Original
		if cmp.WinnerID == cmp.Variant.AdSetID {
			winner = cmp.Variant
		}
		verdict = fmt.Sprintf("*%s* is ahead", winner.Name)
		if cmp.ImprovementPct > 0 {
			verdict += fmt.Sprintf(" with a %.1f%% lower CPA", cmp.ImprovementPct)
		}
		verdict += "."
	}

	blocks := []slackapi.Block{
		slackapi.Header(fmt.Sprintf("Duplication results (last %d days)", CompareWindowDays)),
		slackapi.FieldSection(sideFields(cmp.Original)...),
		slackapi.FieldSection(sideFields(cmp.Variant)...),
		slackapi.Divider(),
		slackapi.Section(verdict),
	}
	return blocks
}
