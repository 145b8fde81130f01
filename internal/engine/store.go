package engine

import (
	"context"

	"github.com/kevinvdv/reviewflow/model"
)

// TaskStore persists workflow items and their task state. Read methods serve
// task-list views and quorum checks and must return a consistent snapshot;
// they do not require the per-item exclusion scope. All mutations go through
// InTx.
type TaskStore interface {
	// GetItem retrieves a workflow item by ID, scoped to a tenant. Returns
	// NOT_FOUND if the item doesn't exist or belongs to a different tenant.
	GetItem(ctx context.Context, tenantID, itemID string) (model.WorkflowItem, error)

	// HasActiveItemForSubmission reports whether an active workflow item
	// already exists for the given submission.
	HasActiveItemForSubmission(ctx context.Context, tenantID, submissionID string) (bool, error)

	// PoolTasks returns the pool tasks for one (item, step).
	PoolTasks(ctx context.Context, itemID, stepID string) ([]model.PoolTask, error)

	// PooledTasksFor returns all pool tasks across items naming the
	// principal directly or any of the given groups.
	PooledTasksFor(ctx context.Context, tenantID, principalID string, groups []string) ([]model.PoolTask, error)

	// StepClaims returns the claimed tasks for one (item, step).
	StepClaims(ctx context.Context, itemID, stepID string) ([]model.ClaimedTask, error)

	// StepTasks returns the pool tasks and claimed tasks for one
	// (item, step) out of a single consistent snapshot, so a claim
	// committing concurrently can never appear in both lists.
	StepTasks(ctx context.Context, itemID, stepID string) ([]model.PoolTask, []model.ClaimedTask, error)

	// ClaimFor returns the principal's claim on the item, if any. At most
	// one exists per (item, principal).
	ClaimFor(ctx context.Context, itemID, principalID string) (model.ClaimedTask, bool, error)

	// ClaimedTasksFor returns all claims held by the principal across items.
	ClaimedTasksFor(ctx context.Context, tenantID, principalID string) ([]model.ClaimedTask, error)

	// Requirements returns the completion records for one (item, step).
	Requirements(ctx context.Context, itemID, stepID string) ([]model.RequirementRecord, error)

	// Roster returns the eligibility snapshot taken when the step opened.
	Roster(ctx context.Context, itemID, stepID string) ([]model.RosterEntry, error)

	// Events returns the item's audit trail ordered by timestamp.
	Events(ctx context.Context, itemID string) ([]model.WorkflowEvent, error)

	// StepActor returns the principal who most recently completed the given
	// step of the item, or "" when nobody has. Backed by the audit trail,
	// so it survives the requirement-record purge on step transition.
	StepActor(ctx context.Context, itemID, stepID string) (string, error)

	// InTx runs fn against a transactional view of the store. Either every
	// mutation fn makes commits, or none of them do.
	InTx(ctx context.Context, fn func(tx TaskTx) error) error
}

// TaskTx is the mutation surface available inside a store transaction.
type TaskTx interface {
	CreateItem(item model.WorkflowItem) error
	GetItem(tenantID, itemID string) (model.WorkflowItem, error)
	// UpdateItem persists an updated item with optimistic locking. The
	// version must match the stored version; CONFLICT otherwise.
	UpdateItem(item model.WorkflowItem) error
	HasActiveItemForSubmission(tenantID, submissionID string) (bool, error)

	InsertPoolTasks(tasks []model.PoolTask) error
	PoolTasks(itemID, stepID string) ([]model.PoolTask, error)
	DeletePoolTask(id string) error
	DeleteStepPoolTasks(itemID, stepID string) error

	InsertClaim(claim model.ClaimedTask) error
	// InsertExclusiveClaim records a claim on a step that admits at most
	// one claimant. Implementations must hold the (item, step) exclusivity
	// even against a concurrent transaction in another process; a second
	// claim fails with ALREADY_CLAIMED.
	InsertExclusiveClaim(claim model.ClaimedTask) error
	StepClaims(itemID, stepID string) ([]model.ClaimedTask, error)
	ClaimFor(itemID, principalID string) (model.ClaimedTask, bool, error)
	DeleteClaim(id string) error
	DeleteStepClaims(itemID, stepID string) error

	InsertRequirement(rec model.RequirementRecord) error
	Requirements(itemID, stepID string) ([]model.RequirementRecord, error)
	ClearRequirements(itemID, stepID string) error

	InsertRoster(entries []model.RosterEntry) error
	Roster(itemID, stepID string) ([]model.RosterEntry, error)
	ClearRoster(itemID, stepID string) error

	// PurgeItemTasks deletes all pool tasks, claims, requirement records,
	// and rosters for the item across every step.
	PurgeItemTasks(itemID string) error

	AppendEvent(event model.WorkflowEvent) error
}
