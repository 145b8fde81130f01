package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kevinvdv/reviewflow/model"
)

// MemoryTaskStore is an in-memory TaskStore for testing and single-node
// deployments. Transactions stage their mutations on a copy of the state and
// swap it in on success, so a failed transaction leaves nothing behind.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	items   map[string]model.WorkflowItem    // key: item ID
	pool    map[string]model.PoolTask        // key: task ID
	claims  map[string]model.ClaimedTask     // key: claim ID
	reqs    []model.RequirementRecord
	rosters []model.RosterEntry
	events  map[string][]model.WorkflowEvent // key: item ID
}

// NewMemoryTaskStore creates a new in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		items:  make(map[string]model.WorkflowItem),
		pool:   make(map[string]model.PoolTask),
		claims: make(map[string]model.ClaimedTask),
		events: make(map[string][]model.WorkflowEvent),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		items:   make(map[string]model.WorkflowItem, len(s.items)),
		pool:    make(map[string]model.PoolTask, len(s.pool)),
		claims:  make(map[string]model.ClaimedTask, len(s.claims)),
		reqs:    append([]model.RequirementRecord(nil), s.reqs...),
		rosters: append([]model.RosterEntry(nil), s.rosters...),
		events:  make(map[string][]model.WorkflowEvent, len(s.events)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.pool {
		c.pool[k] = v
	}
	for k, v := range s.claims {
		c.claims[k] = v
	}
	for k, v := range s.events {
		c.events[k] = append([]model.WorkflowEvent(nil), v...)
	}
	return c
}

// InTx runs fn against a staged copy of the store state and commits the copy
// atomically when fn succeeds.
func (s *MemoryTaskStore) InTx(_ context.Context, fn func(tx TaskTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memTx{state: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// GetItem retrieves a workflow item scoped to a tenant.
func (s *MemoryTaskStore) GetItem(_ context.Context, tenantID, itemID string) (model.WorkflowItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getItem(tenantID, itemID)
}

// HasActiveItemForSubmission reports whether an active item exists for the
// submission.
func (s *MemoryTaskStore) HasActiveItemForSubmission(_ context.Context, tenantID, submissionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.hasActiveItemForSubmission(tenantID, submissionID)
}

// PoolTasks returns the pool tasks for one (item, step).
func (s *MemoryTaskStore) PoolTasks(_ context.Context, itemID, stepID string) ([]model.PoolTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.poolTasks(itemID, stepID), nil
}

// PooledTasksFor returns pool tasks across items naming the principal
// directly or via one of their groups.
func (s *MemoryTaskStore) PooledTasksFor(_ context.Context, tenantID, principalID string, groups []string) ([]model.PoolTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inGroups := make(map[string]bool, len(groups))
	for _, g := range groups {
		inGroups[g] = true
	}

	var result []model.PoolTask
	for _, task := range s.state.pool {
		item, ok := s.state.items[task.ItemID]
		if !ok || item.TenantID != tenantID {
			continue
		}
		if task.PrincipalID == principalID || (task.GroupID != "" && inGroups[task.GroupID]) {
			result = append(result, task)
		}
	}
	sortPoolTasks(result)
	return result, nil
}

// StepClaims returns the claimed tasks for one (item, step).
func (s *MemoryTaskStore) StepClaims(_ context.Context, itemID, stepID string) ([]model.ClaimedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.stepClaims(itemID, stepID), nil
}

// StepTasks returns the pool tasks and claims for one (item, step) under a
// single lock acquisition, so the two lists always agree.
func (s *MemoryTaskStore) StepTasks(_ context.Context, itemID, stepID string) ([]model.PoolTask, []model.ClaimedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.poolTasks(itemID, stepID), s.state.stepClaims(itemID, stepID), nil
}

// ClaimFor returns the principal's claim on the item, if any.
func (s *MemoryTaskStore) ClaimFor(_ context.Context, itemID, principalID string) (model.ClaimedTask, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.claimFor(itemID, principalID)
	return c, ok, nil
}

// ClaimedTasksFor returns all claims held by the principal.
func (s *MemoryTaskStore) ClaimedTasksFor(_ context.Context, tenantID, principalID string) ([]model.ClaimedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ClaimedTask
	for _, c := range s.state.claims {
		item, ok := s.state.items[c.ItemID]
		if !ok || item.TenantID != tenantID {
			continue
		}
		if c.PrincipalID == principalID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClaimedAt.Before(result[j].ClaimedAt)
	})
	return result, nil
}

// Requirements returns completion records for one (item, step).
func (s *MemoryTaskStore) Requirements(_ context.Context, itemID, stepID string) ([]model.RequirementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.requirements(itemID, stepID), nil
}

// Roster returns the eligibility snapshot for one (item, step).
func (s *MemoryTaskStore) Roster(_ context.Context, itemID, stepID string) ([]model.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.roster(itemID, stepID), nil
}

// Events returns the item's audit trail ordered by timestamp.
func (s *MemoryTaskStore) Events(_ context.Context, itemID string) ([]model.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.state.events[itemID]
	result := make([]model.WorkflowEvent, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// StepActor returns the principal who most recently completed the step.
func (s *MemoryTaskStore) StepActor(_ context.Context, itemID, stepID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var actor string
	var latest time.Time
	for _, evt := range s.state.events[itemID] {
		if evt.Event != model.EventActionDone || evt.StepID != stepID {
			continue
		}
		if actor == "" || evt.Timestamp.After(latest) {
			actor = evt.ActorID
			latest = evt.Timestamp
		}
	}
	return actor, nil
}

// Len returns the total number of items. For testing.
func (s *MemoryTaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.items)
}

// --- shared state helpers ---

func (s *memState) getItem(tenantID, itemID string) (model.WorkflowItem, error) {
	item, exists := s.items[itemID]
	if !exists || item.TenantID != tenantID {
		return model.WorkflowItem{}, model.NewNotFoundError(
			fmt.Sprintf("workflow item %q not found", itemID),
		)
	}
	return item, nil
}

func (s *memState) hasActiveItemForSubmission(tenantID, submissionID string) (bool, error) {
	for _, item := range s.items {
		if item.TenantID == tenantID && item.SubmissionID == submissionID && item.Status == model.ItemStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) poolTasks(itemID, stepID string) []model.PoolTask {
	var result []model.PoolTask
	for _, t := range s.pool {
		if t.ItemID == itemID && t.StepID == stepID {
			result = append(result, t)
		}
	}
	sortPoolTasks(result)
	return result
}

func (s *memState) stepClaims(itemID, stepID string) []model.ClaimedTask {
	var result []model.ClaimedTask
	for _, c := range s.claims {
		if c.ItemID == itemID && c.StepID == stepID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClaimedAt.Before(result[j].ClaimedAt)
	})
	return result
}

func (s *memState) claimFor(itemID, principalID string) (model.ClaimedTask, bool) {
	for _, c := range s.claims {
		if c.ItemID == itemID && c.PrincipalID == principalID {
			return c, true
		}
	}
	return model.ClaimedTask{}, false
}

func (s *memState) requirements(itemID, stepID string) []model.RequirementRecord {
	var result []model.RequirementRecord
	for _, r := range s.reqs {
		if r.ItemID == itemID && r.StepID == stepID {
			result = append(result, r)
		}
	}
	return result
}

func (s *memState) roster(itemID, stepID string) []model.RosterEntry {
	var result []model.RosterEntry
	for _, e := range s.rosters {
		if e.ItemID == itemID && e.StepID == stepID {
			result = append(result, e)
		}
	}
	return result
}

func sortPoolTasks(tasks []model.PoolTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].ItemID != tasks[j].ItemID {
			return tasks[i].ItemID < tasks[j].ItemID
		}
		return tasks[i].PrincipalID < tasks[j].PrincipalID
	})
}

// --- transaction view ---

type memTx struct {
	state *memState
}

func (t *memTx) CreateItem(item model.WorkflowItem) error {
	if _, exists := t.state.items[item.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow item %q already exists", item.ID),
		)
	}
	t.state.items[item.ID] = item
	return nil
}

func (t *memTx) GetItem(tenantID, itemID string) (model.WorkflowItem, error) {
	return t.state.getItem(tenantID, itemID)
}

func (t *memTx) UpdateItem(item model.WorkflowItem) error {
	existing, exists := t.state.items[item.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow item %q not found", item.ID),
		)
	}
	if existing.Version != item.Version {
		return model.NewConcurrentTransitionError(item.ID)
	}
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	t.state.items[item.ID] = item
	return nil
}

func (t *memTx) HasActiveItemForSubmission(tenantID, submissionID string) (bool, error) {
	return t.state.hasActiveItemForSubmission(tenantID, submissionID)
}

func (t *memTx) InsertPoolTasks(tasks []model.PoolTask) error {
	for _, task := range tasks {
		t.state.pool[task.ID] = task
	}
	return nil
}

func (t *memTx) PoolTasks(itemID, stepID string) ([]model.PoolTask, error) {
	return t.state.poolTasks(itemID, stepID), nil
}

func (t *memTx) DeletePoolTask(id string) error {
	delete(t.state.pool, id)
	return nil
}

func (t *memTx) DeleteStepPoolTasks(itemID, stepID string) error {
	for id, task := range t.state.pool {
		if task.ItemID == itemID && task.StepID == stepID {
			delete(t.state.pool, id)
		}
	}
	return nil
}

func (t *memTx) InsertClaim(claim model.ClaimedTask) error {
	if _, held := t.state.claimFor(claim.ItemID, claim.PrincipalID); held {
		return model.NewConflictError(
			fmt.Sprintf("principal %q already holds a claim on item %q", claim.PrincipalID, claim.ItemID),
		)
	}
	t.state.claims[claim.ID] = claim
	return nil
}

func (t *memTx) InsertExclusiveClaim(claim model.ClaimedTask) error {
	if existing := t.state.stepClaims(claim.ItemID, claim.StepID); len(existing) > 0 {
		return model.NewAlreadyClaimedError(claim.StepID)
	}
	return t.InsertClaim(claim)
}

func (t *memTx) StepClaims(itemID, stepID string) ([]model.ClaimedTask, error) {
	return t.state.stepClaims(itemID, stepID), nil
}

func (t *memTx) ClaimFor(itemID, principalID string) (model.ClaimedTask, bool, error) {
	c, ok := t.state.claimFor(itemID, principalID)
	return c, ok, nil
}

func (t *memTx) DeleteClaim(id string) error {
	delete(t.state.claims, id)
	return nil
}

func (t *memTx) DeleteStepClaims(itemID, stepID string) error {
	for id, c := range t.state.claims {
		if c.ItemID == itemID && c.StepID == stepID {
			delete(t.state.claims, id)
		}
	}
	return nil
}

func (t *memTx) InsertRequirement(rec model.RequirementRecord) error {
	t.state.reqs = append(t.state.reqs, rec)
	return nil
}

func (t *memTx) Requirements(itemID, stepID string) ([]model.RequirementRecord, error) {
	return t.state.requirements(itemID, stepID), nil
}

func (t *memTx) ClearRequirements(itemID, stepID string) error {
	kept := t.state.reqs[:0]
	for _, r := range t.state.reqs {
		if r.ItemID == itemID && r.StepID == stepID {
			continue
		}
		kept = append(kept, r)
	}
	t.state.reqs = kept
	return nil
}

func (t *memTx) InsertRoster(entries []model.RosterEntry) error {
	t.state.rosters = append(t.state.rosters, entries...)
	return nil
}

func (t *memTx) Roster(itemID, stepID string) ([]model.RosterEntry, error) {
	return t.state.roster(itemID, stepID), nil
}

func (t *memTx) ClearRoster(itemID, stepID string) error {
	kept := t.state.rosters[:0]
	for _, e := range t.state.rosters {
		if e.ItemID == itemID && e.StepID == stepID {
			continue
		}
		kept = append(kept, e)
	}
	t.state.rosters = kept
	return nil
}

func (t *memTx) PurgeItemTasks(itemID string) error {
	for id, task := range t.state.pool {
		if task.ItemID == itemID {
			delete(t.state.pool, id)
		}
	}
	for id, c := range t.state.claims {
		if c.ItemID == itemID {
			delete(t.state.claims, id)
		}
	}
	keptReqs := t.state.reqs[:0]
	for _, r := range t.state.reqs {
		if r.ItemID != itemID {
			keptReqs = append(keptReqs, r)
		}
	}
	t.state.reqs = keptReqs

	keptRoster := t.state.rosters[:0]
	for _, e := range t.state.rosters {
		if e.ItemID != itemID {
			keptRoster = append(keptRoster, e)
		}
	}
	t.state.rosters = keptRoster
	return nil
}

func (t *memTx) AppendEvent(event model.WorkflowEvent) error {
	t.state.events[event.ItemID] = append(t.state.events[event.ItemID], event)
	return nil
}
