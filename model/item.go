package model

import "time"

// Workflow item status constants.
const (
	ItemStatusActive   = "active"
	ItemStatusApproved = "approved"
	ItemStatusRejected = "rejected"
	ItemStatusAborted  = "aborted"
)

// Action outcome constants. A completion event carries exactly one outcome.
const (
	OutcomeApprove = "approve"
	OutcomeReject  = "reject"
)

// Audit event names recorded against a workflow item.
const (
	EventItemEntered  = "item_entered"
	EventStepOpened   = "step_opened"
	EventStepClosed   = "step_closed"
	EventTaskClaimed  = "task_claimed"
	EventTaskReturned = "task_returned"
	EventActionDone   = "action_completed"
	EventItemApproved = "item_approved"
	EventItemRejected = "item_rejected"
	EventItemAborted  = "item_aborted"
	EventItemStalled  = "item_stalled"
)

// WorkflowItem is the routed entity: a reference to the in-progress
// submission plus the current step pointer and workflow-type tag. A
// submission has at most one active WorkflowItem at any time.
type WorkflowItem struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	WorkflowType string    `json:"workflow_type"`
	TenantID     string    `json:"tenant_id"`
	SubmitterID  string    `json:"submitter_id"`
	CollectionID string    `json:"collection_id"`
	CurrentStep  string    `json:"current_step,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

// PoolTask is an unclaimed slot on a work item's current step, open to one
// principal directly or to any member of a group. Exactly one of PrincipalID
// and GroupID is set when the task is group-scoped; per-principal tasks carry
// the group they were expanded from so late-joining members remain claimable.
type PoolTask struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"item_id"`
	StepID      string    `json:"step_id"`
	PrincipalID string    `json:"principal_id,omitempty"`
	GroupID     string    `json:"group_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClaimedTask is an exclusive assignment of one step's action to one
// principal. Unique on (item, principal); additionally unique on (item, step)
// when the step's quorum is ANY.
type ClaimedTask struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"item_id"`
	StepID      string    `json:"step_id"`
	PrincipalID string    `json:"principal_id"`
	ClaimedAt   time.Time `json:"claimed_at"`
}

// RequirementRecord marks that a principal has completed a step's action.
// Append-only per (item, step, principal); cleared when the item leaves the
// step or the workflow entirely.
type RequirementRecord struct {
	ItemID      string    `json:"item_id"`
	StepID      string    `json:"step_id"`
	PrincipalID string    `json:"principal_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// RosterEntry is one principal of the eligibility snapshot taken when a step
// opened. ALL-quorum satisfaction and unclaim restoration are evaluated
// against the roster, never against live directory state. GroupID records the
// group through which the principal was eligible, if any.
type RosterEntry struct {
	ItemID      string `json:"item_id"`
	StepID      string `json:"step_id"`
	PrincipalID string `json:"principal_id"`
	GroupID     string `json:"group_id,omitempty"`
}

// WorkflowEvent records an event in a workflow item's audit trail.
type WorkflowEvent struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"item_id"`
	StepID      string    `json:"step_id,omitempty"`
	Event       string    `json:"event"`
	ActorID     string    `json:"actor_id"`
	Comment     string    `json:"comment,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TaskDescriptor is the task-list view of a pooled or claimed task, enriched
// with item and step display data.
type TaskDescriptor struct {
	TaskID       string     `json:"task_id"`
	ItemID       string     `json:"item_id"`
	SubmissionID string     `json:"submission_id"`
	WorkflowType string     `json:"workflow_type"`
	StepID       string     `json:"step_id"`
	StepName     string     `json:"step_name"`
	Action       string     `json:"action"`
	Claimed      bool       `json:"claimed"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

// ItemDescriptor is the full read model of a workflow item: the item itself,
// its live pool and claim state, and its audit history.
type ItemDescriptor struct {
	Item    WorkflowItem    `json:"item"`
	Pooled  []PoolTask      `json:"pooled"`
	Claimed []ClaimedTask   `json:"claimed"`
	History []HistoryEntry  `json:"history"`
}

// HistoryEntry is a rendered audit event for read views.
type HistoryEntry struct {
	StepName  string `json:"step_name,omitempty"`
	Event     string `json:"event"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment,omitempty"`
}
