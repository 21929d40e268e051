package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/ad-autopilot/internal/pkg/filelock"
	"github.com/ignite/ad-autopilot/internal/pkg/logger"
)

var (
	// ErrNotFound is returned when no candidate action has the given id.
	ErrNotFound = errors.New("ledger: action not found")
	// ErrAlreadyTracked is returned when a subject already has a live
	// candidate or an executed mutation.
	ErrAlreadyTracked = errors.New("ledger: subject already tracked")
	// ErrInvalidTransition is returned for any move the status machine
	// does not allow, including out of a terminal status.
	ErrInvalidTransition = errors.New("ledger: invalid status transition")
)

// Ledger owns the three state files. All writes go through the file
// lock so concurrent runs cannot interleave read-modify-write cycles.
type Ledger struct {
	approvalsPath string
	historyPath   string
	reactionsPath string
	lock          filelock.Lock
	now           func() time.Time
}

// New builds a ledger rooted at dir.
func New(dir string) *Ledger {
	return &Ledger{
		approvalsPath: filepath.Join(dir, ApprovalsFile),
		historyPath:   filepath.Join(dir, HistoryFile),
		reactionsPath: filepath.Join(dir, ReactionsFile),
		lock:          filelock.New(filepath.Join(dir, ".ledger.lock")),
		now:           time.Now,
	}
}

// SetClock overrides the time source (useful for testing).
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := l.lock.Acquire(lockCtx); err != nil {
		return fmt.Errorf("ledger: acquiring state lock: %w", err)
	}
	defer func() {
		if err := l.lock.Release(); err != nil {
			logger.Warn("failed to release state lock", "error", err.Error())
		}
	}()
	return fn()
}

func (l *Ledger) loadActions() ([]CandidateAction, error) {
	var actions []CandidateAction
	if err := readJSONFile(l.approvalsPath, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// Propose records a new pending candidate action. Uniqueness is keyed
// on (subject, action kind): a subject with a live (pending or
// approved) candidate of the same kind, or one whose kind already
// appears in the mutation history, is refused with ErrAlreadyTracked.
func (l *Ledger) Propose(ctx context.Context, c CandidateAction) (CandidateAction, error) {
	var out CandidateAction
	err := l.withLock(ctx, func() error {
		actions, err := l.loadActions()
		if err != nil {
			return err
		}
		for _, existing := range actions {
			if existing.SubjectID == c.SubjectID && existing.ActionKind == c.ActionKind && !existing.Status.Terminal() {
				return fmt.Errorf("%w: %s has %s action %s", ErrAlreadyTracked, c.SubjectID, existing.Status, existing.ID)
			}
		}

		processed, err := l.processedSubjects()
		if err != nil {
			return err
		}
		if processed[subjectKindKey(c.SubjectID, c.ActionKind)] {
			return fmt.Errorf("%w: %s already mutated", ErrAlreadyTracked, c.SubjectID)
		}

		c.ID = uuid.New().String()
		c.Status = StatusPending
		c.ProposedAt = l.now().UTC()
		c.DecidedAt = nil
		c.ExecutedAt = nil

		actions = append(actions, c)
		if err := writeJSONFile(l.approvalsPath, actions); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Transition moves an action to a new status under the status machine.
// DecidedAt is stamped on the pending->decided edge and ExecutedAt on
// the approved->terminal edge; neither is ever overwritten.
func (l *Ledger) Transition(ctx context.Context, actionID string, to Status, note string) (CandidateAction, error) {
	var out CandidateAction
	err := l.withLock(ctx, func() error {
		actions, err := l.loadActions()
		if err != nil {
			return err
		}

		idx := -1
		for i := range actions {
			if actions[i].ID == actionID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return fmt.Errorf("%w: %s", ErrNotFound, actionID)
		}

		action := &actions[idx]
		if !canTransition(action.Status, to) {
			return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, action.Status, to, actionID)
		}

		now := l.now().UTC()
		switch to {
		case StatusApproved, StatusRejected:
			action.DecidedAt = &now
			action.DecidedBy = note
		case StatusExecuted, StatusStopped, StatusError:
			action.ExecutedAt = &now
			if to == StatusError {
				action.LastError = note
			}
		}
		action.Status = to

		if err := writeJSONFile(l.approvalsPath, actions); err != nil {
			return err
		}
		out = *action
		return nil
	})
	return out, err
}

// Get returns one action by id.
func (l *Ledger) Get(actionID string) (CandidateAction, error) {
	actions, err := l.loadActions()
	if err != nil {
		return CandidateAction{}, err
	}
	for _, a := range actions {
		if a.ID == actionID {
			return a, nil
		}
	}
	return CandidateAction{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
}

// List returns all actions, optionally filtered by status. An empty
// status returns everything.
func (l *Ledger) List(status Status) ([]CandidateAction, error) {
	actions, err := l.loadActions()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return actions, nil
	}
	var filtered []CandidateAction
	for _, a := range actions {
		if a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// AppendMutation records an executed mutation in the history file.
func (l *Ledger) AppendMutation(ctx context.Context, rec MutationRecord) error {
	return l.withLock(ctx, func() error {
		var history []MutationRecord
		if err := readJSONFile(l.historyPath, &history); err != nil {
			return err
		}
		history = append(history, rec)
		return writeJSONFile(l.historyPath, history)
	})
}

// History returns every recorded mutation.
func (l *Ledger) History() ([]MutationRecord, error) {
	var history []MutationRecord
	if err := readJSONFile(l.historyPath, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func subjectKindKey(subjectID string, kind ActionKind) string {
	return subjectID + "|" + string(kind)
}

func (l *Ledger) processedSubjects() (map[string]bool, error) {
	history, err := l.History()
	if err != nil {
		return nil, err
	}
	processed := make(map[string]bool, len(history))
	for _, rec := range history {
		processed[subjectKindKey(rec.OriginalID, rec.ActionKind)] = true
	}
	return processed, nil
}

// AlreadyProcessed reports whether a mutation of the given kind has
// already executed against a subject.
func (l *Ledger) AlreadyProcessed(subjectID string, kind ActionKind) (bool, error) {
	processed, err := l.processedSubjects()
	if err != nil {
		return false, err
	}
	return processed[subjectKindKey(subjectID, kind)], nil
}

// SaveReactionRef stores the chat message reference for an action,
// replacing any previous reference for the same action.
func (l *Ledger) SaveReactionRef(ctx context.Context, ref ReactionRef) error {
	return l.withLock(ctx, func() error {
		var refs []ReactionRef
		if err := readJSONFile(l.reactionsPath, &refs); err != nil {
			return err
		}
		replaced := false
		for i := range refs {
			if refs[i].ActionID == ref.ActionID {
				refs[i] = ref
				replaced = true
				break
			}
		}
		if !replaced {
			refs = append(refs, ref)
		}
		return writeJSONFile(l.reactionsPath, refs)
	})
}

// ReactionRefs returns the stored message references keyed by action id.
func (l *Ledger) ReactionRefs() (map[string]ReactionRef, error) {
	var refs []ReactionRef
	if err := readJSONFile(l.reactionsPath, &refs); err != nil {
		return nil, err
	}
	byAction := make(map[string]ReactionRef, len(refs))
	for _, r := range refs {
		byAction[r.ActionID] = r
	}
	return byAction, nil
}
