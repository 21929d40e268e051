package orchestrator

import (
	"context"
	"fmt"

	"github.com/ignite/ad-autopilot/internal/approval"
	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

// RunSummary reports the outcome of one execution run.
type RunSummary struct {
	Polled       int
	Approved     int
	Rejected     int
	StillPending int
	Executed     int
	Stopped      int
	Errors       int
}

// Failed reports whether anything in the run ended in error.
func (s RunSummary) Failed() bool {
	return s.Errors > 0
}

func (s RunSummary) String() string {
	return fmt.Sprintf("polled=%d approved=%d rejected=%d pending=%d executed=%d stopped=%d errors=%d",
		s.Polled, s.Approved, s.Rejected, s.StillPending, s.Executed, s.Stopped, s.Errors)
}

// CollectDecisions polls every approval channel for each pending
// action and applies the merged verdict. Channels that fail to answer
// degrade to unknown rather than failing the run.
func (o *Orchestrator) CollectDecisions(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	pending, err := o.ledger.List(ledger.StatusPending)
	if err != nil {
		return summary, err
	}

	for _, action := range pending {
		summary.Polled++

		var decisions []approval.Decision
		decidedBy := ""
		for _, reader := range o.readers {
			d, err := reader.Poll(ctx, action)
			if err != nil {
				logger.Warn("approval channel poll failed",
					"channel", reader.Name(), "action_id", action.ID, "error", err.Error())
				d = approval.DecisionUnknown
			}
			if d == approval.DecisionApproved && decidedBy == "" {
				decidedBy = reader.Name()
			}
			decisions = append(decisions, d)
		}

		switch approval.Merge(decisions) {
		case approval.DecisionApproved:
			if _, err := o.ledger.Transition(ctx, action.ID, ledger.StatusApproved, decidedBy); err != nil {
				return summary, err
			}
			summary.Approved++
			logger.Info("action approved", "action_id", action.ID, "subject_id", action.SubjectID, "channel", decidedBy)
		case approval.DecisionRejected:
			if _, err := o.ledger.Transition(ctx, action.ID, ledger.StatusRejected, ""); err != nil {
				return summary, err
			}
			summary.Rejected++
			logger.Info("action rejected", "action_id", action.ID, "subject_id", action.SubjectID)
		default:
			summary.StillPending++
		}
	}
	return summary, nil
}

// RunApproved collects decisions and then executes everything in the
// approved state, optionally restricted to the given action kinds.
// Execution failures mark the individual action and the run continues;
// only infrastructure failures abort.
func (o *Orchestrator) RunApproved(ctx context.Context, kinds ...ledger.ActionKind) (RunSummary, error) {
	summary, err := o.CollectDecisions(ctx)
	if err != nil {
		return summary, err
	}

	approved, err := o.ledger.List(ledger.StatusApproved)
	if err != nil {
		return summary, err
	}

	wanted := func(k ledger.ActionKind) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, kind := range kinds {
			if kind == k {
				return true
			}
		}
		return false
	}

	for _, action := range approved {
		if !wanted(action.ActionKind) {
			continue
		}
		result, err := o.executor.Execute(ctx, action)
		if err != nil {
			return summary, fmt.Errorf("orchestrator: executing %s: %w", action.ID, err)
		}
		switch result.Status {
		case ledger.StatusExecuted:
			summary.Executed++
		case ledger.StatusStopped:
			summary.Stopped++
		case ledger.StatusError:
			summary.Errors++
		}
	}

	logger.Info("execution run complete", "summary", summary.String())
	return summary, nil
}
