// Package approval collects human decisions from the configured
// channels (chat reactions, spreadsheet column, web clicks) and merges
// them into one verdict per candidate action.
package approval

import (
	"context"
	"errors"
	"strings"

	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
	"github.com/ignite/ad-autopilot/internal/sheets"
	"github.com/ignite/ad-autopilot/internal/slackapi"
)

// Decision is one channel's verdict on a candidate action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionPending  Decision = "pending"
	// DecisionUnknown means the channel could not produce a signal at
	// all (message deleted, row missing). It never outranks a real
	// decision.
	DecisionUnknown Decision = "unknown"
)

// Reader polls one approval channel for a decision on an action.
type Reader interface {
	Poll(ctx context.Context, c ledger.CandidateAction) (Decision, error)
	Name() string
}

// Merge combines decisions from multiple channels. Any approval wins
// over any rejection, a rejection wins over pending, and unknown only
// surfaces when no channel produced anything better.
func Merge(decisions []Decision) Decision {
	merged := DecisionUnknown
	for _, d := range decisions {
		switch d {
		case DecisionApproved:
			return DecisionApproved
		case DecisionRejected:
			merged = DecisionRejected
		case DecisionPending:
			if merged != DecisionRejected {
				merged = DecisionPending
			}
		}
	}
	return merged
}

// ReactionReader reads approvals as emoji reactions on the chat
// message that announced the candidate.
type ReactionReader struct {
	slack        *slackapi.Client
	ledger       *ledger.Ledger
	approveEmoji string
	rejectEmoji  string
}

// NewReactionReader builds a reaction-based reader.
func NewReactionReader(slack *slackapi.Client, l *ledger.Ledger, approveEmoji, rejectEmoji string) *ReactionReader {
	return &ReactionReader{slack: slack, ledger: l, approveEmoji: approveEmoji, rejectEmoji: rejectEmoji}
}

func (r *ReactionReader) Name() string { return "slack_reactions" }

// Poll looks up the stored message reference and inspects its
// reactions. Approve and reject on the same message resolve to
// approved.
func (r *ReactionReader) Poll(ctx context.Context, c ledger.CandidateAction) (Decision, error) {
	refs, err := r.ledger.ReactionRefs()
	if err != nil {
		return DecisionUnknown, err
	}
	ref, ok := refs[c.ID]
	if !ok {
		return DecisionUnknown, nil
	}

	names, err := r.slack.GetReactions(ctx, ref.MessageTS)
	if err != nil {
		if errors.Is(err, slackapi.ErrMessageNotFound) {
			logger.Warn("approval message no longer exists", "action_id", c.ID, "message_ts", ref.MessageTS)
			return DecisionUnknown, nil
		}
		return DecisionUnknown, err
	}

	var approved, rejected bool
	for _, name := range names {
		switch name {
		case r.approveEmoji:
			approved = true
		case r.rejectEmoji:
			rejected = true
		}
	}
	switch {
	case approved:
		return DecisionApproved, nil
	case rejected:
		return DecisionRejected, nil
	}
	return DecisionPending, nil
}

// SheetRows is the slice of the sheets client the reader needs.
type SheetRows interface {
	ReadAllRows(ctx context.Context) ([][]string, error)
}

// SheetReader reads approvals from a spreadsheet column. Reviewers
// write YES (any casing) next to the subject they approve.
type SheetReader struct {
	sheet           SheetRows
	approvalColumn  string
	subjectIDColumn string
}

// NewSheetReader builds a spreadsheet-based reader.
func NewSheetReader(sheet SheetRows, approvalColumn, subjectIDColumn string) *SheetReader {
	return &SheetReader{sheet: sheet, approvalColumn: approvalColumn, subjectIDColumn: subjectIDColumn}
}

func (r *SheetReader) Name() string { return "sheet" }

// Poll finds the subject's row and reads the approval column. A
// subject with no row yet simply has not been decided, so it maps to
// pending; a sheet whose header lacks the expected columns yields
// unknown because nothing can be read from it.
func (r *SheetReader) Poll(ctx context.Context, c ledger.CandidateAction) (Decision, error) {
	rows, err := r.sheet.ReadAllRows(ctx)
	if err != nil {
		return DecisionUnknown, err
	}
	if len(rows) == 0 {
		return DecisionPending, nil
	}

	header := rows[0]
	idCol, approvalCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case r.subjectIDColumn:
			idCol = i
		case r.approvalColumn:
			approvalCol = i
		}
	}
	if idCol == -1 || approvalCol == -1 {
		logger.Warn("approval sheet header missing expected columns",
			"subject_id_column", r.subjectIDColumn, "approval_column", r.approvalColumn)
		return DecisionUnknown, nil
	}

	for _, row := range rows[1:] {
		if idCol >= len(row) || row[idCol] != c.SubjectID {
			continue
		}
		value := ""
		if approvalCol < len(row) {
			value = strings.ToUpper(strings.TrimSpace(row[approvalCol]))
		}
		switch value {
		case "YES":
			return DecisionApproved, nil
		case "NO":
			return DecisionRejected, nil
		}
		return DecisionPending, nil
	}
	return DecisionPending, nil
}

var _ SheetRows = (*sheets.Client)(nil)

// WebReader surfaces decisions already applied through the HTTP
// approval endpoints: the ledger status itself is the signal.
type WebReader struct {
	ledger *ledger.Ledger
}

// NewWebReader builds a ledger-status reader.
func NewWebReader(l *ledger.Ledger) *WebReader {
	return &WebReader{ledger: l}
}

func (r *WebReader) Name() string { return "web" }

func (r *WebReader) Poll(ctx context.Context, c ledger.CandidateAction) (Decision, error) {
	current, err := r.ledger.Get(c.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return DecisionUnknown, nil
		}
		return DecisionUnknown, err
	}
	switch current.Status {
	case ledger.StatusApproved:
		return DecisionApproved, nil
	case ledger.StatusRejected:
		return DecisionRejected, nil
	case ledger.StatusPending:
		return DecisionPending, nil
	}
	return DecisionUnknown, nil
}
