package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevinvdv/reviewflow/internal/definition"
	"github.com/kevinvdv/reviewflow/model"
)

const (
	defaultResolveTimeout = 5 * time.Second
	defaultAdminRole      = "workflow-admin"

	systemActor = "system"
)

// RoleResolver expands a step's role rule into the eligible principals. When
// the rule is group-granted the owning group is returned as well.
type RoleResolver interface {
	EligiblePrincipals(ctx context.Context, item model.WorkflowItem, step model.StepDefinition) (principals []string, groupID string, err error)
}

// Notifier informs principals that a step opened and tasks await them.
// Notification failures never roll back a transition.
type Notifier interface {
	NotifyActivated(ctx context.Context, item model.WorkflowItem, step model.StepDefinition, principals []string) error
}

// Lifecycle receives the terminal-state callbacks toward the submission
// service: archive on approval, return to the submitter's workspace on
// rejection, discard on abort.
type Lifecycle interface {
	Archive(ctx context.Context, item model.WorkflowItem) error
	ReturnToWorkspace(ctx context.Context, item model.WorkflowItem, reason string) error
	Discard(ctx context.Context, item model.WorkflowItem, reason string) error
}

// Options tunes engine behavior. Zero values fall back to defaults.
type Options struct {
	// ResolveTimeout bounds directory lookups during step opening.
	ResolveTimeout time.Duration
	// AdminRole is the role required to abort an item.
	AdminRole string
}

// Engine drives workflow items through their configured steps: entering the
// workflow, claiming and returning tasks, recording completed actions, and
// advancing or terminating items when a step's quorum is satisfied.
//
// Every mutation of one item runs under that item's lock, so reads taken
// before the transaction observe a stable state and version conflicts only
// arise across processes sharing a store.
type Engine struct {
	registry  *definition.Registry
	store     TaskStore
	resolver  RoleResolver
	notifier  Notifier
	lifecycle Lifecycle
	locks     *itemLocks
	logger    *zap.Logger

	resolveTimeout time.Duration
	adminRole      string
}

// NewEngine creates a workflow engine.
func NewEngine(
	registry *definition.Registry,
	store TaskStore,
	resolver RoleResolver,
	notifier Notifier,
	lifecycle Lifecycle,
	logger *zap.Logger,
	opts Options,
) *Engine {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	if opts.AdminRole == "" {
		opts.AdminRole = defaultAdminRole
	}
	return &Engine{
		registry:       registry,
		store:          store,
		resolver:       resolver,
		notifier:       notifier,
		lifecycle:      lifecycle,
		locks:          newItemLocks(),
		logger:         logger,
		resolveTimeout: opts.ResolveTimeout,
		adminRole:      opts.AdminRole,
	}
}

// notice is a deferred step-activation notification, dispatched only after
// the transaction committed and the item lock was released.
type notice struct {
	item       model.WorkflowItem
	step       model.StepDefinition
	principals []string
}

// Enter creates a workflow item for a submission and opens the first
// configured step. A submission with an active item cannot enter again.
func (e *Engine) Enter(
	ctx context.Context,
	rctx *model.RequestContext,
	submissionID, workflowType, collectionID string,
) (model.WorkflowItem, error) {
	// 1. Look up the workflow definition and its first step.
	first, err := e.registry.FirstStep(workflowType)
	if err != nil {
		return model.WorkflowItem{}, err
	}

	// 2. Build the item.
	now := time.Now().UTC()
	item := model.WorkflowItem{
		ID:           uuid.New().String(),
		SubmissionID: submissionID,
		WorkflowType: workflowType,
		TenantID:     rctx.TenantID,
		SubmitterID:  rctx.SubjectID,
		CollectionID: collectionID,
		CurrentStep:  first.ID,
		Status:       model.ItemStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}

	// 3. Resolve first-step eligibility. The first step never references an
	// earlier actor, so resolution needs no item history.
	principals, groupID, err := e.resolveEligibility(ctx, item, first)
	if err != nil {
		return model.WorkflowItem{}, err
	}

	// 4. Persist the item, its entry event, and the opened first step.
	unlock := e.locks.Lock(item.ID)
	err = e.store.InTx(ctx, func(tx TaskTx) error {
		active, err := tx.HasActiveItemForSubmission(rctx.TenantID, submissionID)
		if err != nil {
			return err
		}
		if active {
			return model.NewConflictError(
				fmt.Sprintf("submission %q already has an active workflow item", submissionID),
			)
		}
		if err := tx.CreateItem(item); err != nil {
			return err
		}
		if err := e.appendEvent(tx, item.ID, first.ID, model.EventItemEntered, rctx.SubjectID, ""); err != nil {
			return err
		}
		return e.openStep(tx, item, first, principals, groupID)
	})
	unlock()
	if err != nil {
		return model.WorkflowItem{}, err
	}

	e.logger.Info("workflow item entered",
		zap.String("item_id", item.ID),
		zap.String("submission_id", submissionID),
		zap.String("workflow_type", workflowType),
		zap.String("step_id", first.ID),
		zap.Int("eligible", len(principals)),
	)

	// 5. A step with nobody eligible stalls the item. The item stays
	// persisted so an operator can fix the directory and re-open.
	if len(principals) == 0 {
		return item, model.NewNoEligiblePrincipalsError(first.ID)
	}

	e.dispatch(ctx, notice{item: item, step: first, principals: principals})
	return item, nil
}

// Claim assigns a pool task on the item's current step exclusively to the
// caller. On ANY-quorum steps a successful claim removes the whole pool, so
// exactly one concurrent claimer wins.
func (e *Engine) Claim(
	ctx context.Context,
	rctx *model.RequestContext,
	itemID, stepID string,
) (model.ClaimedTask, error) {
	unlock := e.locks.Lock(itemID)
	defer unlock()

	var claim model.ClaimedTask
	err := e.store.InTx(ctx, func(tx TaskTx) error {
		// 1. The item must be active and on the requested step.
		item, err := tx.GetItem(rctx.TenantID, itemID)
		if err != nil {
			return err
		}
		if item.Status != model.ItemStatusActive {
			return model.NewItemNotActiveError(itemID, item.Status)
		}
		step, err := e.registry.Step(item.WorkflowType, stepID)
		if err != nil {
			return err
		}
		if item.CurrentStep != stepID {
			return model.NewNotEligibleError(rctx.SubjectID, stepID)
		}

		// 2. One claim per principal per item.
		if _, held, err := tx.ClaimFor(itemID, rctx.SubjectID); err != nil {
			return err
		} else if held {
			return model.NewConflictError(
				fmt.Sprintf("principal %q already holds a claim on item %q", rctx.SubjectID, itemID),
			)
		}

		// 3. A principal who already finished the step cannot take it
		// again through a peer's group-tagged slot.
		reqs, err := tx.Requirements(itemID, stepID)
		if err != nil {
			return err
		}
		for _, rec := range reqs {
			if rec.PrincipalID == rctx.SubjectID {
				return model.NewNotEligibleError(rctx.SubjectID, stepID)
			}
		}

		// 4. ANY-quorum steps are exclusively held: a racing second claimer
		// must see ALREADY_CLAIMED, not a missing pool task.
		if step.Quorum == model.QuorumAny {
			claims, err := tx.StepClaims(itemID, stepID)
			if err != nil {
				return err
			}
			if len(claims) > 0 {
				return model.NewAlreadyClaimedError(stepID)
			}
		}

		// 5. Find the caller's pool task: a direct slot, or any group slot
		// the caller is a member of. Group matching admits principals who
		// joined the group after the step opened.
		pool, err := tx.PoolTasks(itemID, stepID)
		if err != nil {
			return err
		}
		matched, direct := matchPoolTask(pool, rctx)
		if matched == nil {
			return model.NewNotEligibleError(rctx.SubjectID, stepID)
		}

		// 6. Consume pool state. An ANY claim empties the step pool; an ALL
		// claim consumes only the caller's own slot, and a group-admitted
		// late joiner consumes nothing.
		if step.Quorum == model.QuorumAny {
			if err := tx.DeleteStepPoolTasks(itemID, stepID); err != nil {
				return err
			}
		} else if direct {
			if err := tx.DeletePoolTask(matched.ID); err != nil {
				return err
			}
		}

		// 7. Record the claim. ANY claims go through the exclusive insert
		// so the store itself enforces the single holder, even against a
		// second engine process sharing the database.
		claim = model.ClaimedTask{
			ID:          uuid.New().String(),
			ItemID:      itemID,
			StepID:      stepID,
			PrincipalID: rctx.SubjectID,
			ClaimedAt:   time.Now().UTC(),
		}
		if step.Quorum == model.QuorumAny {
			err = tx.InsertExclusiveClaim(claim)
		} else {
			err = tx.InsertClaim(claim)
		}
		if err != nil {
			return err
		}
		return e.appendEvent(tx, itemID, stepID, model.EventTaskClaimed, rctx.SubjectID, "")
	})
	if err != nil {
		return model.ClaimedTask{}, err
	}

	e.logger.Info("task claimed",
		zap.String("item_id", itemID),
		zap.String("step_id", stepID),
		zap.String("principal_id", rctx.SubjectID),
	)
	return claim, nil
}

// Unclaim returns the caller's claimed task to the pool without recording an
// outcome. Pool tasks are restored for every roster principal who has
// neither finished the step nor currently holds a claim.
func (e *Engine) Unclaim(
	ctx context.Context,
	rctx *model.RequestContext,
	itemID, stepID string,
) error {
	unlock := e.locks.Lock(itemID)
	defer unlock()

	err := e.store.InTx(ctx, func(tx TaskTx) error {
		item, err := tx.GetItem(rctx.TenantID, itemID)
		if err != nil {
			return err
		}
		if item.Status != model.ItemStatusActive {
			return model.NewItemNotActiveError(itemID, item.Status)
		}

		claim, held, err := tx.ClaimFor(itemID, rctx.SubjectID)
		if err != nil {
			return err
		}
		if !held || claim.StepID != stepID {
			return model.NewNotClaimedError(rctx.SubjectID, stepID)
		}
		if err := tx.DeleteClaim(claim.ID); err != nil {
			return err
		}
		if err := e.restorePool(tx, itemID, stepID); err != nil {
			return err
		}
		return e.appendEvent(tx, itemID, stepID, model.EventTaskReturned, rctx.SubjectID, "")
	})
	if err != nil {
		return err
	}

	e.logger.Info("task returned to pool",
		zap.String("item_id", itemID),
		zap.String("step_id", stepID),
		zap.String("principal_id", rctx.SubjectID),
	)
	return nil
}

// Complete records the caller's outcome for the item's current step. An
// approval satisfies the caller's share of the quorum; when the quorum is
// fully satisfied the item advances to the next step, or leaves the workflow
// approved after the last one. Any rejection terminates the item immediately.
func (e *Engine) Complete(
	ctx context.Context,
	rctx *model.RequestContext,
	itemID, stepID, outcome, comment string,
) (model.WorkflowItem, error) {
	if outcome != model.OutcomeApprove && outcome != model.OutcomeReject {
		return model.WorkflowItem{}, model.NewBadRequestError(
			fmt.Sprintf("unknown outcome %q", outcome),
		)
	}

	unlock := e.locks.Lock(itemID)
	item, note, err := e.completeLocked(ctx, rctx, itemID, stepID, outcome, comment)
	unlock()
	if err != nil {
		return model.WorkflowItem{}, err
	}

	// Post-commit side effects run outside the item lock.
	switch item.Status {
	case model.ItemStatusApproved:
		if lerr := e.lifecycle.Archive(ctx, item); lerr != nil {
			e.logger.Warn("archive callback failed",
				zap.String("item_id", item.ID), zap.Error(lerr))
		}
	case model.ItemStatusRejected:
		if lerr := e.lifecycle.ReturnToWorkspace(ctx, item, comment); lerr != nil {
			e.logger.Warn("return-to-workspace callback failed",
				zap.String("item_id", item.ID), zap.Error(lerr))
		}
	}
	if note != nil {
		if len(note.principals) == 0 {
			return item, model.NewNoEligiblePrincipalsError(note.step.ID)
		}
		e.dispatch(ctx, *note)
	}
	return item, nil
}

// completeLocked is the transactional body of Complete. It returns the item
// as committed and, when a next step opened, the pending activation notice.
// The caller holds the item lock.
func (e *Engine) completeLocked(
	ctx context.Context,
	rctx *model.RequestContext,
	itemID, stepID, outcome, comment string,
) (model.WorkflowItem, *notice, error) {
	// 1. Read the current state. The item lock serializes writers, so these
	// reads stay valid through the transaction below.
	item, err := e.store.GetItem(ctx, rctx.TenantID, itemID)
	if err != nil {
		return model.WorkflowItem{}, nil, err
	}
	if item.Status != model.ItemStatusActive {
		return model.WorkflowItem{}, nil, model.NewItemNotActiveError(itemID, item.Status)
	}
	if item.CurrentStep != stepID {
		// The step already closed; any claim the caller held was consumed.
		return model.WorkflowItem{}, nil, model.NewNotClaimedError(rctx.SubjectID, stepID)
	}
	step, err := e.registry.Step(item.WorkflowType, stepID)
	if err != nil {
		return model.WorkflowItem{}, nil, err
	}

	// 2. The caller must hold a claim on the step. ALL-quorum steps also
	// accept a direct pool slot, so required reviewers can finish without
	// an explicit claim round-trip.
	claim, held, err := e.store.ClaimFor(ctx, itemID, rctx.SubjectID)
	if err != nil {
		return model.WorkflowItem{}, nil, err
	}
	viaClaim := held && claim.StepID == stepID
	var directTask *model.PoolTask
	if !viaClaim {
		if step.Quorum == model.QuorumAll {
			pool, perr := e.store.PoolTasks(ctx, itemID, stepID)
			if perr != nil {
				return model.WorkflowItem{}, nil, perr
			}
			for i := range pool {
				if pool[i].PrincipalID == rctx.SubjectID {
					directTask = &pool[i]
					break
				}
			}
		}
		if directTask == nil {
			return model.WorkflowItem{}, nil, model.NewNotClaimedError(rctx.SubjectID, stepID)
		}
	}

	// 3. Decide the step outcome.
	const (
		decideStay = iota
		decideAdvance
		decideApprove
		decideReject
	)
	decision := decideStay
	var next model.StepDefinition
	if outcome == model.OutcomeReject {
		decision = decideReject
	} else {
		satisfied, serr := e.quorumSatisfied(ctx, item, step, rctx.SubjectID)
		if serr != nil {
			return model.WorkflowItem{}, nil, serr
		}
		if satisfied {
			nextStep, hasNext, nerr := e.registry.NextStep(item.WorkflowType, stepID)
			if nerr != nil {
				return model.WorkflowItem{}, nil, nerr
			}
			if hasNext {
				decision = decideAdvance
				next = nextStep
			} else {
				decision = decideApprove
			}
		}
	}

	// 4. Resolve eligibility for the next step before mutating anything.
	// A step_actor rule referencing the step being completed resolves to
	// the caller, whose completion event is not yet committed.
	var nextPrincipals []string
	var nextGroup string
	if decision == decideAdvance {
		if next.Role.Kind == model.RoleKindStepActor && next.Role.Step == stepID {
			nextPrincipals = []string{rctx.SubjectID}
		} else {
			nextPrincipals, nextGroup, err = e.resolveEligibility(ctx, item, next)
			if err != nil {
				return model.WorkflowItem{}, nil, err
			}
		}
	}

	// 5. Apply the whole delta in one transaction.
	err = e.store.InTx(ctx, func(tx TaskTx) error {
		if viaClaim {
			if err := tx.DeleteClaim(claim.ID); err != nil {
				return err
			}
		} else if err := tx.DeletePoolTask(directTask.ID); err != nil {
			return err
		}
		if err := tx.InsertRequirement(model.RequirementRecord{
			ItemID:      itemID,
			StepID:      stepID,
			PrincipalID: rctx.SubjectID,
			CompletedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := e.appendEvent(tx, itemID, stepID, model.EventActionDone, rctx.SubjectID, comment); err != nil {
			return err
		}

		switch decision {
		case decideStay:
			return tx.UpdateItem(item)

		case decideAdvance:
			if err := e.closeStep(tx, itemID, stepID); err != nil {
				return err
			}
			item.CurrentStep = next.ID
			if err := e.openStep(tx, item, next, nextPrincipals, nextGroup); err != nil {
				return err
			}
			return tx.UpdateItem(item)

		case decideApprove:
			if err := e.closeStep(tx, itemID, stepID); err != nil {
				return err
			}
			item.Status = model.ItemStatusApproved
			item.CurrentStep = ""
			if err := e.appendEvent(tx, itemID, "", model.EventItemApproved, rctx.SubjectID, ""); err != nil {
				return err
			}
			return tx.UpdateItem(item)

		default: // decideReject
			if err := e.closeStep(tx, itemID, stepID); err != nil {
				return err
			}
			item.Status = model.ItemStatusRejected
			item.CurrentStep = ""
			if err := e.appendEvent(tx, itemID, stepID, model.EventItemRejected, rctx.SubjectID, comment); err != nil {
				return err
			}
			return tx.UpdateItem(item)
		}
	})
	if err != nil {
		return model.WorkflowItem{}, nil, err
	}

	// 6. Re-read for the committed version.
	committed, err := e.store.GetItem(ctx, rctx.TenantID, itemID)
	if err != nil {
		return model.WorkflowItem{}, nil, err
	}

	e.logger.Info("action completed",
		zap.String("item_id", itemID),
		zap.String("step_id", stepID),
		zap.String("principal_id", rctx.SubjectID),
		zap.String("outcome", outcome),
		zap.String("status", committed.Status),
		zap.String("current_step", committed.CurrentStep),
	)

	if decision == decideAdvance {
		return committed, &notice{item: committed, step: next, principals: nextPrincipals}, nil
	}
	return committed, nil, nil
}

// Abort terminates an active item administratively, discarding all task
// state. Requires the configured admin role.
func (e *Engine) Abort(
	ctx context.Context,
	rctx *model.RequestContext,
	itemID, reason string,
) (model.WorkflowItem, error) {
	if !rctx.HasRole(e.adminRole) {
		return model.WorkflowItem{}, model.NewForbiddenError(
			fmt.Sprintf("aborting a workflow item requires role %q", e.adminRole),
		)
	}

	unlock := e.locks.Lock(itemID)
	var item model.WorkflowItem
	err := e.store.InTx(ctx, func(tx TaskTx) error {
		var err error
		item, err = tx.GetItem(rctx.TenantID, itemID)
		if err != nil {
			return err
		}
		if item.Status != model.ItemStatusActive {
			return model.NewItemNotActiveError(itemID, item.Status)
		}
		if err := tx.PurgeItemTasks(itemID); err != nil {
			return err
		}
		item.Status = model.ItemStatusAborted
		item.CurrentStep = ""
		if err := e.appendEvent(tx, itemID, "", model.EventItemAborted, rctx.SubjectID, reason); err != nil {
			return err
		}
		return tx.UpdateItem(item)
	})
	unlock()
	if err != nil {
		return model.WorkflowItem{}, err
	}

	e.logger.Info("workflow item aborted",
		zap.String("item_id", itemID),
		zap.String("actor_id", rctx.SubjectID),
	)
	if lerr := e.lifecycle.Discard(ctx, item, reason); lerr != nil {
		e.logger.Warn("discard callback failed",
			zap.String("item_id", itemID), zap.Error(lerr))
	}

	committed, err := e.store.GetItem(ctx, rctx.TenantID, itemID)
	if err != nil {
		return model.WorkflowItem{}, err
	}
	return committed, nil
}

// Get returns the full read model of one item: the item, its live pool and
// claim state, and its rendered audit history.
func (e *Engine) Get(
	ctx context.Context,
	rctx *model.RequestContext,
	itemID string,
) (model.ItemDescriptor, error) {
	item, err := e.store.GetItem(ctx, rctx.TenantID, itemID)
	if err != nil {
		return model.ItemDescriptor{}, err
	}

	desc := model.ItemDescriptor{Item: item}
	if item.CurrentStep != "" {
		// Both lists come from one snapshot: a claim landing between two
		// separate reads would show the step as pooled and claimed at once.
		if desc.Pooled, desc.Claimed, err = e.store.StepTasks(ctx, itemID, item.CurrentStep); err != nil {
			return model.ItemDescriptor{}, err
		}
	}

	events, err := e.store.Events(ctx, itemID)
	if err != nil {
		return model.ItemDescriptor{}, err
	}
	wfDef, _ := e.registry.Get(item.WorkflowType)
	for _, evt := range events {
		entry := model.HistoryEntry{
			Event:     evt.Event,
			Actor:     evt.ActorID,
			Timestamp: evt.Timestamp.Format(time.RFC3339),
			Comment:   evt.Comment,
		}
		if evt.StepID != "" {
			if step, ok := wfDef.Step(evt.StepID); ok {
				entry.StepName = step.Name
			} else {
				entry.StepName = evt.StepID
			}
		}
		desc.History = append(desc.History, entry)
	}
	return desc, nil
}

// PooledTasks lists the pool tasks the caller may claim, across all items,
// matched directly or through the caller's groups.
func (e *Engine) PooledTasks(ctx context.Context, rctx *model.RequestContext) ([]model.TaskDescriptor, error) {
	tasks, err := e.store.PooledTasksFor(ctx, rctx.TenantID, rctx.SubjectID, rctx.Groups)
	if err != nil {
		return nil, err
	}

	result := make([]model.TaskDescriptor, 0, len(tasks))
	for _, t := range tasks {
		desc, err := e.describeTask(ctx, rctx, t.ID, t.ItemID, t.StepID)
		if err != nil {
			return nil, err
		}
		result = append(result, desc)
	}
	return result, nil
}

// ClaimedTasks lists the claims the caller currently holds across all items.
func (e *Engine) ClaimedTasks(ctx context.Context, rctx *model.RequestContext) ([]model.TaskDescriptor, error) {
	claims, err := e.store.ClaimedTasksFor(ctx, rctx.TenantID, rctx.SubjectID)
	if err != nil {
		return nil, err
	}

	result := make([]model.TaskDescriptor, 0, len(claims))
	for _, c := range claims {
		desc, err := e.describeTask(ctx, rctx, c.ID, c.ItemID, c.StepID)
		if err != nil {
			return nil, err
		}
		desc.Claimed = true
		claimedAt := c.ClaimedAt
		desc.ClaimedAt = &claimedAt
		result = append(result, desc)
	}
	return result, nil
}

func (e *Engine) describeTask(
	ctx context.Context,
	rctx *model.RequestContext,
	taskID, itemID, stepID string,
) (model.TaskDescriptor, error) {
	item, err := e.store.GetItem(ctx, rctx.TenantID, itemID)
	if err != nil {
		return model.TaskDescriptor{}, err
	}
	desc := model.TaskDescriptor{
		TaskID:       taskID,
		ItemID:       itemID,
		SubmissionID: item.SubmissionID,
		WorkflowType: item.WorkflowType,
		StepID:       stepID,
	}
	if step, serr := e.registry.Step(item.WorkflowType, stepID); serr == nil {
		desc.StepName = step.Name
		desc.Action = step.Action
	}
	return desc, nil
}

// --- step state helpers ---

// openStep snapshots the eligibility roster and seeds the pool for a step.
// Re-opening a step that already has a roster is a no-op, so a retried
// transition cannot double the pool.
func (e *Engine) openStep(
	tx TaskTx,
	item model.WorkflowItem,
	step model.StepDefinition,
	principals []string,
	groupID string,
) error {
	existing, err := tx.Roster(item.ID, step.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	roster := make([]model.RosterEntry, 0, len(principals))
	pool := make([]model.PoolTask, 0, len(principals))
	for _, p := range principals {
		roster = append(roster, model.RosterEntry{
			ItemID:      item.ID,
			StepID:      step.ID,
			PrincipalID: p,
			GroupID:     groupID,
		})
		pool = append(pool, model.PoolTask{
			ID:          uuid.New().String(),
			ItemID:      item.ID,
			StepID:      step.ID,
			PrincipalID: p,
			GroupID:     groupID,
			CreatedAt:   now,
		})
	}
	if err := tx.InsertRoster(roster); err != nil {
		return err
	}
	if err := tx.InsertPoolTasks(pool); err != nil {
		return err
	}
	if err := e.appendEvent(tx, item.ID, step.ID, model.EventStepOpened, systemActor, ""); err != nil {
		return err
	}
	if len(principals) == 0 {
		return e.appendEvent(tx, item.ID, step.ID, model.EventItemStalled, systemActor,
			"no eligible principals for step")
	}
	return nil
}

// closeStep discards all task state of a step the item is leaving.
func (e *Engine) closeStep(tx TaskTx, itemID, stepID string) error {
	if err := tx.DeleteStepPoolTasks(itemID, stepID); err != nil {
		return err
	}
	if err := tx.DeleteStepClaims(itemID, stepID); err != nil {
		return err
	}
	if err := tx.ClearRequirements(itemID, stepID); err != nil {
		return err
	}
	if err := tx.ClearRoster(itemID, stepID); err != nil {
		return err
	}
	return e.appendEvent(tx, itemID, stepID, model.EventStepClosed, systemActor, "")
}

// restorePool re-creates pool tasks after an unclaim: every roster principal
// who has not finished the step, does not hold a claim, and has no pool task
// already gets their slot back.
func (e *Engine) restorePool(tx TaskTx, itemID, stepID string) error {
	roster, err := tx.Roster(itemID, stepID)
	if err != nil {
		return err
	}
	reqs, err := tx.Requirements(itemID, stepID)
	if err != nil {
		return err
	}
	claims, err := tx.StepClaims(itemID, stepID)
	if err != nil {
		return err
	}
	pool, err := tx.PoolTasks(itemID, stepID)
	if err != nil {
		return err
	}

	excluded := make(map[string]bool)
	for _, r := range reqs {
		excluded[r.PrincipalID] = true
	}
	for _, c := range claims {
		excluded[c.PrincipalID] = true
	}
	for _, t := range pool {
		excluded[t.PrincipalID] = true
	}

	now := time.Now().UTC()
	var restored []model.PoolTask
	for _, entry := range roster {
		if excluded[entry.PrincipalID] {
			continue
		}
		restored = append(restored, model.PoolTask{
			ID:          uuid.New().String(),
			ItemID:      itemID,
			StepID:      stepID,
			PrincipalID: entry.PrincipalID,
			GroupID:     entry.GroupID,
			CreatedAt:   now,
		})
	}
	if len(restored) == 0 {
		return nil
	}
	return tx.InsertPoolTasks(restored)
}

// quorumSatisfied reports whether the caller's pending approval, together
// with the recorded requirement records, satisfies the step's quorum.
func (e *Engine) quorumSatisfied(
	ctx context.Context,
	item model.WorkflowItem,
	step model.StepDefinition,
	principalID string,
) (bool, error) {
	if step.Quorum == model.QuorumAny {
		return true, nil
	}

	// ALL quorum: every principal in the open-time roster must have a
	// requirement record. Late group joiners may contribute but never
	// block, because they are absent from the roster.
	reqs, err := e.store.Requirements(ctx, item.ID, step.ID)
	if err != nil {
		return false, err
	}
	done := map[string]bool{principalID: true}
	for _, r := range reqs {
		done[r.PrincipalID] = true
	}
	roster, err := e.store.Roster(ctx, item.ID, step.ID)
	if err != nil {
		return false, err
	}
	for _, entry := range roster {
		if !done[entry.PrincipalID] {
			return false, nil
		}
	}
	return true, nil
}

// resolveEligibility runs the role resolver under the configured timeout.
func (e *Engine) resolveEligibility(
	ctx context.Context,
	item model.WorkflowItem,
	step model.StepDefinition,
) ([]string, string, error) {
	rctx, cancel := context.WithTimeout(ctx, e.resolveTimeout)
	defer cancel()

	principals, groupID, err := e.resolver.EligiblePrincipals(rctx, item, step)
	if err != nil {
		return nil, "", fmt.Errorf("resolve eligibility for step %q: %w", step.ID, err)
	}
	return principals, groupID, nil
}

// dispatch sends a step-activation notification. Failures are logged and
// recorded, never propagated: the transition already committed.
func (e *Engine) dispatch(ctx context.Context, n notice) {
	if err := e.notifier.NotifyActivated(ctx, n.item, n.step, n.principals); err != nil {
		e.logger.Warn("step activation notification failed",
			zap.String("item_id", n.item.ID),
			zap.String("step_id", n.step.ID),
			zap.Int("recipients", len(n.principals)),
			zap.Error(err),
		)
	}
}

func (e *Engine) appendEvent(tx TaskTx, itemID, stepID, event, actorID, comment string) error {
	return tx.AppendEvent(model.WorkflowEvent{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		StepID:    stepID,
		Event:     event,
		ActorID:   actorID,
		Comment:   comment,
		Timestamp: time.Now().UTC(),
	})
}

// matchPoolTask returns the pool task the caller may claim, preferring a
// direct slot over a group match, and whether the match was direct.
func matchPoolTask(pool []model.PoolTask, rctx *model.RequestContext) (*model.PoolTask, bool) {
	var groupMatch *model.PoolTask
	for i := range pool {
		if pool[i].PrincipalID == rctx.SubjectID {
			return &pool[i], true
		}
		if groupMatch == nil && pool[i].GroupID != "" && rctx.InGroup(pool[i].GroupID) {
			groupMatch = &pool[i]
		}
	}
	return groupMatch, false
}
