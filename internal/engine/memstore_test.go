package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevinvdv/reviewflow/model"
)

func seedItem(t *testing.T, store *MemoryTaskStore, id, submissionID string) model.WorkflowItem {
	t.Helper()
	item := model.WorkflowItem{
		ID:           id,
		SubmissionID: submissionID,
		WorkflowType: "review.default",
		TenantID:     "tenant-1",
		SubmitterID:  "submitter",
		CurrentStep:  "review",
		Status:       model.ItemStatusActive,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
		Version:      1,
	}
	err := store.InTx(context.Background(), func(tx TaskTx) error {
		return tx.CreateItem(item)
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func TestMemoryTaskStore_TxRollsBackOnError(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx TaskTx) error {
		if err := tx.InsertPoolTasks([]model.PoolTask{{
			ID: "task-1", ItemID: "item-1", StepID: "review", PrincipalID: "alice",
		}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	pool, _ := store.PoolTasks(ctx, "item-1", "review")
	if len(pool) != 0 {
		t.Errorf("pool = %d after rollback, want 0", len(pool))
	}
}

func TestMemoryTaskStore_UpdateItemVersionConflict(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	item := seedItem(t, store, "item-1", "sub-1")

	// First update bumps the version.
	if err := store.InTx(ctx, func(tx TaskTx) error {
		return tx.UpdateItem(item)
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A second update with the stale version conflicts.
	err := store.InTx(ctx, func(tx TaskTx) error {
		return tx.UpdateItem(item)
	})
	if err == nil {
		t.Fatal("expected version conflict")
	}
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if envErr.Code != model.ErrConcurrentTransition {
		t.Errorf("code = %s, want CONCURRENT_TRANSITION", envErr.Code)
	}

	stored, _ := store.GetItem(ctx, "tenant-1", "item-1")
	if stored.Version != 2 {
		t.Errorf("Version = %d, want 2", stored.Version)
	}
}

func TestMemoryTaskStore_GetItemTenantScoped(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	if _, err := store.GetItem(ctx, "tenant-1", "item-1"); err != nil {
		t.Fatalf("GetItem error: %v", err)
	}
	_, err := store.GetItem(ctx, "tenant-2", "item-1")
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok || envErr.Code != model.ErrNotFound {
		t.Errorf("cross-tenant read = %v, want NOT_FOUND", err)
	}
}

func TestMemoryTaskStore_HasActiveItemForSubmission(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	item := seedItem(t, store, "item-1", "sub-1")

	active, err := store.HasActiveItemForSubmission(ctx, "tenant-1", "sub-1")
	if err != nil || !active {
		t.Fatalf("active = %v, err = %v", active, err)
	}

	// Terminal items do not count.
	item.Status = model.ItemStatusRejected
	if err := store.InTx(ctx, func(tx TaskTx) error {
		return tx.UpdateItem(item)
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, _ = store.HasActiveItemForSubmission(ctx, "tenant-1", "sub-1")
	if active {
		t.Error("rejected item still counts as active")
	}
}

func TestMemoryTaskStore_InsertClaimUniquePerPrincipal(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	insert := func(id string) error {
		return store.InTx(ctx, func(tx TaskTx) error {
			return tx.InsertClaim(model.ClaimedTask{
				ID: id, ItemID: "item-1", StepID: "review", PrincipalID: "alice",
				ClaimedAt: time.Now().UTC(),
			})
		})
	}
	if err := insert("claim-1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insert("claim-2")
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok || envErr.Code != model.ErrConflict {
		t.Errorf("duplicate insert = %v, want CONFLICT", err)
	}
}

func TestMemoryTaskStore_InsertExclusiveClaimSingleHolder(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	insert := func(id, principal string) error {
		return store.InTx(ctx, func(tx TaskTx) error {
			return tx.InsertExclusiveClaim(model.ClaimedTask{
				ID: id, ItemID: "item-1", StepID: "review", PrincipalID: principal,
				ClaimedAt: time.Now().UTC(),
			})
		})
	}
	if err := insert("claim-1", "alice"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insert("claim-2", "bob")
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok || envErr.Code != model.ErrAlreadyClaimed {
		t.Errorf("second holder insert = %v, want ALREADY_CLAIMED", err)
	}

	claims, _ := store.StepClaims(ctx, "item-1", "review")
	if len(claims) != 1 || claims[0].PrincipalID != "alice" {
		t.Errorf("claims = %+v, want alice only", claims)
	}
}

func TestMemoryTaskStore_StepTasksSingleSnapshot(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	err := store.InTx(ctx, func(tx TaskTx) error {
		if err := tx.InsertPoolTasks([]model.PoolTask{
			{ID: "task-1", ItemID: "item-1", StepID: "review", PrincipalID: "alice"},
			{ID: "task-2", ItemID: "item-1", StepID: "review", PrincipalID: "bob"},
		}); err != nil {
			return err
		}
		return tx.InsertClaim(model.ClaimedTask{
			ID: "claim-1", ItemID: "item-1", StepID: "edit", PrincipalID: "carol",
			ClaimedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	pool, claims, err := store.StepTasks(ctx, "item-1", "review")
	if err != nil {
		t.Fatalf("StepTasks error: %v", err)
	}
	if len(pool) != 2 {
		t.Errorf("pool = %d tasks, want 2", len(pool))
	}
	if len(claims) != 0 {
		t.Errorf("claims = %d on review, want 0", len(claims))
	}
}

func TestMemoryTaskStore_PooledTasksForMatchesGroups(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	err := store.InTx(ctx, func(tx TaskTx) error {
		return tx.InsertPoolTasks([]model.PoolTask{
			{ID: "t1", ItemID: "item-1", StepID: "review", PrincipalID: "alice", GroupID: "reviewers"},
			{ID: "t2", ItemID: "item-1", StepID: "review", PrincipalID: "bob", GroupID: "reviewers"},
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	direct, _ := store.PooledTasksFor(ctx, "tenant-1", "alice", nil)
	if len(direct) != 1 {
		t.Errorf("direct = %d, want 1", len(direct))
	}
	viaGroup, _ := store.PooledTasksFor(ctx, "tenant-1", "carol", []string{"reviewers"})
	if len(viaGroup) != 2 {
		t.Errorf("via group = %d, want 2", len(viaGroup))
	}
	none, _ := store.PooledTasksFor(ctx, "tenant-1", "carol", []string{"editors"})
	if len(none) != 0 {
		t.Errorf("none = %d, want 0", len(none))
	}
}

func TestMemoryTaskStore_StepActorLatestWins(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	base := time.Now().UTC()
	err := store.InTx(ctx, func(tx TaskTx) error {
		for i, actor := range []string{"alice", "bob"} {
			if err := tx.AppendEvent(model.WorkflowEvent{
				ID: actor, ItemID: "item-1", StepID: "review",
				Event: model.EventActionDone, ActorID: actor,
				Timestamp: base.Add(time.Duration(i) * time.Second),
			}); err != nil {
				return err
			}
		}
		// Other event kinds and steps do not count.
		return tx.AppendEvent(model.WorkflowEvent{
			ID: "claimed", ItemID: "item-1", StepID: "review",
			Event: model.EventTaskClaimed, ActorID: "carol",
			Timestamp: base.Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	actor, err := store.StepActor(ctx, "item-1", "review")
	if err != nil {
		t.Fatalf("StepActor error: %v", err)
	}
	if actor != "bob" {
		t.Errorf("actor = %q, want bob", actor)
	}

	actor, _ = store.StepActor(ctx, "item-1", "revise")
	if actor != "" {
		t.Errorf("actor = %q, want empty for untouched step", actor)
	}
}

func TestMemoryTaskStore_PurgeItemTasks(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")
	seedItem(t, store, "item-2", "sub-2")

	err := store.InTx(ctx, func(tx TaskTx) error {
		for _, itemID := range []string{"item-1", "item-2"} {
			if err := tx.InsertPoolTasks([]model.PoolTask{
				{ID: itemID + "-t", ItemID: itemID, StepID: "review", PrincipalID: "alice"},
			}); err != nil {
				return err
			}
			if err := tx.InsertRoster([]model.RosterEntry{
				{ItemID: itemID, StepID: "review", PrincipalID: "alice"},
			}); err != nil {
				return err
			}
			if err := tx.InsertRequirement(model.RequirementRecord{
				ItemID: itemID, StepID: "review", PrincipalID: "alice",
			}); err != nil {
				return err
			}
		}
		return tx.PurgeItemTasks("item-1")
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	if pool, _ := store.PoolTasks(ctx, "item-1", "review"); len(pool) != 0 {
		t.Errorf("item-1 pool = %d, want 0", len(pool))
	}
	if roster, _ := store.Roster(ctx, "item-1", "review"); len(roster) != 0 {
		t.Errorf("item-1 roster = %d, want 0", len(roster))
	}
	// Other items untouched.
	if pool, _ := store.PoolTasks(ctx, "item-2", "review"); len(pool) != 1 {
		t.Errorf("item-2 pool = %d, want 1", len(pool))
	}
	if reqs, _ := store.Requirements(ctx, "item-2", "review"); len(reqs) != 1 {
		t.Errorf("item-2 requirements = %d, want 1", len(reqs))
	}
}

func TestMemoryTaskStore_EventsOrdered(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	seedItem(t, store, "item-1", "sub-1")

	base := time.Now().UTC()
	err := store.InTx(ctx, func(tx TaskTx) error {
		// Appended out of order on purpose.
		offsets := map[string]time.Duration{"e1": 0, "e2": time.Second, "e3": 2 * time.Second}
		for _, id := range []string{"e3", "e1", "e2"} {
			if err := tx.AppendEvent(model.WorkflowEvent{
				ID: id, ItemID: "item-1", Event: model.EventStepOpened,
				ActorID: "system", Timestamp: base.Add(offsets[id]),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	events, _ := store.Events(ctx, "item-1")
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if events[i].ID != want {
			t.Errorf("events[%d] = %s, want %s", i, events[i].ID, want)
		}
	}
}
