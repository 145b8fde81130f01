package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kevinvdv/reviewflow/internal/engine"
	"github.com/kevinvdv/reviewflow/internal/observability"
	"github.com/kevinvdv/reviewflow/model"
)

func handleItemEnter(eng *engine.Engine, m *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			SubmissionID string `json:"submission_id"`
			WorkflowType string `json:"workflow_type"`
			CollectionID string `json:"collection_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.SubmissionID == "" || body.WorkflowType == "" {
			WriteError(w, model.NewBadRequestError("submission_id and workflow_type are required"))
			return
		}

		item, err := eng.Enter(r.Context(), rctx, body.SubmissionID, body.WorkflowType, body.CollectionID)
		if err != nil {
			// A stall still creates the item. Report it so the caller
			// learns the item ID, but flag that nobody can act on it yet.
			if ee, ok := err.(*model.ErrorEnvelope); ok && ee.Code == model.ErrNoEligiblePrincipals {
				if m != nil {
					m.ItemsEnteredTotal.WithLabelValues(item.WorkflowType).Inc()
					m.ItemsStalledTotal.WithLabelValues(item.WorkflowType, item.CurrentStep).Inc()
				}
				WriteJSON(w, http.StatusCreated, enterResponse{Item: item, Stalled: true})
				return
			}
			WriteError(w, err)
			return
		}

		if m != nil {
			m.ItemsEnteredTotal.WithLabelValues(item.WorkflowType).Inc()
		}
		WriteJSON(w, http.StatusCreated, enterResponse{Item: item})
	}
}

// enterResponse wraps the created item with a stall flag for submissions
// whose first step has no eligible principals.
type enterResponse struct {
	Item    model.WorkflowItem `json:"item"`
	Stalled bool               `json:"stalled,omitempty"`
}

func handleItemGet(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		itemID := chi.URLParam(r, "itemId")

		desc, err := eng.Get(r.Context(), rctx, itemID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleTaskClaim(eng *engine.Engine, m *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		itemID := chi.URLParam(r, "itemId")
		stepID := chi.URLParam(r, "stepId")

		claim, err := eng.Claim(r.Context(), rctx, itemID, stepID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if m != nil {
			m.ClaimsTotal.WithLabelValues(claim.StepID).Inc()
		}
		WriteJSON(w, http.StatusOK, claim)
	}
}

func handleTaskUnclaim(eng *engine.Engine, m *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		itemID := chi.URLParam(r, "itemId")
		stepID := chi.URLParam(r, "stepId")

		if err := eng.Unclaim(r.Context(), rctx, itemID, stepID); err != nil {
			WriteError(w, err)
			return
		}
		if m != nil {
			m.UnclaimsTotal.WithLabelValues(stepID).Inc()
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "unclaimed"})
	}
}

func handleTaskComplete(eng *engine.Engine, m *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		itemID := chi.URLParam(r, "itemId")
		stepID := chi.URLParam(r, "stepId")

		var body struct {
			Outcome string `json:"outcome"`
			Comment string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		item, err := eng.Complete(r.Context(), rctx, itemID, stepID, body.Outcome, body.Comment)
		if err != nil {
			ee, ok := err.(*model.ErrorEnvelope)
			if !ok || ee.Code != model.ErrNoEligiblePrincipals {
				WriteError(w, err)
				return
			}
			// The step closed and the item advanced, but the next step
			// has nobody eligible. The transition is committed.
			if m != nil {
				m.ItemsStalledTotal.WithLabelValues(item.WorkflowType, item.CurrentStep).Inc()
			}
		}

		if m != nil {
			m.CompletionsTotal.WithLabelValues(item.WorkflowType, stepID, body.Outcome).Inc()
			if item.Status == model.ItemStatusActive && item.CurrentStep != stepID {
				m.TransitionsTotal.WithLabelValues(item.WorkflowType, stepID, item.CurrentStep).Inc()
			}
			if item.Status == model.ItemStatusApproved || item.Status == model.ItemStatusRejected {
				m.ItemsTerminalTotal.WithLabelValues(item.WorkflowType, item.Status).Inc()
			}
		}
		WriteJSON(w, http.StatusOK, item)
	}
}

func handleItemAbort(eng *engine.Engine, m *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		itemID := chi.URLParam(r, "itemId")

		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		item, err := eng.Abort(r.Context(), rctx, itemID, body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		if m != nil {
			m.ItemsTerminalTotal.WithLabelValues(item.WorkflowType, item.Status).Inc()
		}
		WriteJSON(w, http.StatusOK, item)
	}
}

func handlePooledTasks(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		tasks, err := eng.PooledTasks(r.Context(), rctx)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, taskListResponse{Data: tasks, TotalCount: len(tasks)})
	}
}

func handleClaimedTasks(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		tasks, err := eng.ClaimedTasks(r.Context(), rctx)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, taskListResponse{Data: tasks, TotalCount: len(tasks)})
	}
}

type taskListResponse struct {
	Data       []model.TaskDescriptor `json:"data"`
	TotalCount int                    `json:"total_count"`
}
