// Package api exposes the candidate ledger over HTTP so reviewers can
// approve or reject with a click instead of a reaction or a sheet
// edit. Execution never happens here; approved actions wait for the
// next execution run.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/ad-autopilot/internal/ledger"
	"github.com/ignite/ad-autopilot/internal/pkg/httputil"
)

// Handlers holds the API's collaborators.
type Handlers struct {
	ledger *ledger.Ledger
}

// NewHandlers creates handlers over the given ledger.
func NewHandlers(l *ledger.Ledger) *Handlers {
	return &Handlers{ledger: l}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// ListActions returns candidate actions, optionally filtered with
// ?status=pending.
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	status := ledger.Status(r.URL.Query().Get("status"))
	switch status {
	case "", ledger.StatusPending, ledger.StatusApproved, ledger.StatusRejected,
		ledger.StatusExecuted, ledger.StatusStopped, ledger.StatusError:
	default:
		httputil.BadRequest(w, "unknown status filter")
		return
	}

	actions, err := h.ledger.List(status)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if actions == nil {
		actions = []ledger.CandidateAction{}
	}
	httputil.OK(w, map[string]interface{}{"actions": actions, "count": len(actions)})
}

// GetAction returns one candidate action by id.
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	action, err := h.ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			httputil.NotFound(w, "action not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, action)
}

// ListHistory returns the executed mutation history.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.History()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if history == nil {
		history = []ledger.MutationRecord{}
	}
	httputil.OK(w, map[string]interface{}{"mutations": history, "count": len(history)})
}

func (h *Handlers) decide(w http.ResponseWriter, r *http.Request, to ledger.Status) {
	id := chi.URLParam(r, "id")
	action, err := h.ledger.Transition(r.Context(), id, to, "web:"+r.RemoteAddr)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			httputil.NotFound(w, "action not found")
		case errors.Is(err, ledger.ErrInvalidTransition):
			httputil.Conflict(w, "action is no longer pending")
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, action)
}

// ApproveAction marks a pending action approved.
func (h *Handlers) ApproveAction(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, ledger.StatusApproved)
}

// RejectAction marks a pending action rejected.
func (h *Handlers) RejectAction(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, ledger.StatusRejected)
}
