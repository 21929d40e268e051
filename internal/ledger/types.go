// Package ledger persists candidate actions and executed mutations in
// flat JSON state files, with a strict status machine gating every
// transition.
package ledger

import (
	"time"

	"github.com/ignite/ad-autopilot/internal/metrics"
)

// Status is the lifecycle state of a candidate action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusStopped, StatusError:
		return true
	}
	return false
}

// validTransitions is the full status machine. Anything absent is
// rejected.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted, StatusStopped, StatusError},
}

func canTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ActionKind names the destructive operation a candidate proposes.
type ActionKind string

const (
	ActionDuplicateAdSet ActionKind = "duplicate_adset"
	ActionPauseAd        ActionKind = "pause_ad"
	ActionCopyAd         ActionKind = "copy_ad"
)

// CandidateAction is one proposed mutation awaiting human approval.
type CandidateAction struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	SubjectName string    `json:"subject_name,omitempty"`
	ActionKind ActionKind `json:"action_kind"`
	// TargetID is the destination for copy_ad: the ad set the ad is
	// copied into. Unused for the other kinds.
	TargetID string `json:"target_id,omitempty"`

	Snapshot metrics.Snapshot `json:"snapshot"`
	Reason   string           `json:"reason,omitempty"`

	Status     Status     `json:"status"`
	ProposedAt time.Time  `json:"proposed_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	DecidedBy  string     `json:"decided_by,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// CopiedAd records one ad copy inside a duplication.
type CopiedAd struct {
	SourceAdID string `json:"source_ad_id"`
	NewAdID    string `json:"new_ad_id"`
}

// MutationRecord is the durable record of one executed mutation.
type MutationRecord struct {
	ActionID   string     `json:"action_id"`
	ActionKind ActionKind `json:"action_kind"`
	OriginalID string     `json:"original_id"`
	NewID      string     `json:"new_id,omitempty"`
	CopiedAds  []CopiedAd `json:"copied_ads,omitempty"`
	ExecutedAt time.Time  `json:"executed_at"`
}

// ReactionRef ties a candidate action to the chat message whose emoji
// reactions carry the approval signal.
type ReactionRef struct {
	ActionID  string    `json:"action_id"`
	ChannelID string    `json:"channel_id"`
	MessageTS string    `json:"message_ts"`
	PostedAt  time.Time `json:"posted_at"`
}
