// Package metrics evaluates ad performance snapshots: which ads are
// underdelivering, which are protected by conversions, and which ads
// in an A/B pair are winning.
package metrics

import (
	"github.com/ignite/ad-autopilot/internal/meta"
)

// Action types that count as a conversion for protection and CPA.
var conversionActionTypes = map[string]bool{
	"lead":                          true,
	"onsite_conversion.lead_grouped": true,
}

// Thresholds controls candidate classification.
type Thresholds struct {
	ImpressionThreshold int64
	MinAdCount          int
	TopCTRCount         int
	LookbackDays        int
	FullHistoryDays     int
}

// Snapshot is the evaluated view of one ad's delivery over a window.
type Snapshot struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions int64   `json:"conversions"`
	WindowDays  int     `json:"window_days"`
}

// SnapshotFromInsights sums qualifying conversion actions into a
// snapshot. Non-conversion action types are ignored.
func SnapshotFromInsights(in meta.Insights, windowDays int) Snapshot {
	var conversions int64
	for _, action := range in.Actions {
		if conversionActionTypes[action.ActionType] {
			conversions += action.Count()
		}
	}
	return Snapshot{
		Impressions: in.Impressions,
		Clicks:      in.Clicks,
		Spend:       in.Spend,
		Conversions: conversions,
		WindowDays:  windowDays,
	}
}

// CPA returns spend per conversion, or nil when there are no
// conversions to divide by.
func (s Snapshot) CPA() *float64 {
	if s.Conversions == 0 {
		return nil
	}
	cpa := s.Spend / float64(s.Conversions)
	return &cpa
}

// CTR returns clicks per impression as a percentage. Zero impressions
// yields zero, not a division error.
func (s Snapshot) CTR() float64 {
	if s.Impressions == 0 {
		return 0
	}
	return float64(s.Clicks) / float64(s.Impressions) * 100
}

// Class is the classification outcome for one ad.
type Class string

const (
	// ClassLowImpression marks an ad whose lifetime impressions are at
	// or below the threshold.
	ClassLowImpression Class = "low_impression"
	// ClassProtected marks an ad with at least one conversion; it is
	// never a stop or copy candidate regardless of other metrics.
	ClassProtected Class = "protected"
	// ClassHealthy marks everything else.
	ClassHealthy Class = "healthy"
)

// Classify buckets a lifetime snapshot. Conversion protection takes
// precedence over the impression check: a converting ad is protected
// even when it is under the impression threshold.
func (t Thresholds) Classify(s Snapshot) Class {
	if s.Conversions >= 1 {
		return ClassProtected
	}
	if s.Impressions <= t.ImpressionThreshold {
		return ClassLowImpression
	}
	return ClassHealthy
}

// Scored pairs an ad id with its snapshot for ranking.
type Scored struct {
	AdID     string
	AdName   string
	Snapshot Snapshot
}

// SelectWinners returns the ads that must be kept running: the ad with
// the lowest CPA (ties go to the first one encountered), plus the top
// TopCTRCount ads by CTR among those with no conversions. The result
// is keyed by ad id.
func (t Thresholds) SelectWinners(scored []Scored) map[string]bool {
	winners := make(map[string]bool)

	var best *Scored
	var bestCPA float64
	for i := range scored {
		cpa := scored[i].Snapshot.CPA()
		if cpa == nil {
			continue
		}
		if best == nil || *cpa < bestCPA {
			best = &scored[i]
			bestCPA = *cpa
		}
	}
	if best != nil {
		winners[best.AdID] = true
	}

	var noCPA []Scored
	for _, s := range scored {
		if s.Snapshot.CPA() == nil {
			noCPA = append(noCPA, s)
		}
	}
	// Insertion sort keeps the first-encountered order stable on ties.
	for i := 1; i < len(noCPA); i++ {
		for j := i; j > 0 && noCPA[j].Snapshot.CTR() > noCPA[j-1].Snapshot.CTR(); j-- {
			noCPA[j], noCPA[j-1] = noCPA[j-1], noCPA[j]
		}
	}
	limit := t.TopCTRCount
	if limit > len(noCPA) {
		limit = len(noCPA)
	}
	for _, s := range noCPA[:limit] {
		winners[s.AdID] = true
	}

	return winners
}
