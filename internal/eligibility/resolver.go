package eligibility

import (
	"context"
	"fmt"
	"sort"

	"github.com/kevinvdv/reviewflow/model"
)

// ActionHistory answers which principal completed a given step of an item.
// The engine's audit trail backs this; requirement records cannot, because
// they are cleared when the item leaves a step.
type ActionHistory interface {
	StepActor(ctx context.Context, itemID, stepID string) (string, error)
}

// Resolver expands a step's role rule into the concrete set of eligible
// principals. An empty result is legal output here; surfacing it as a
// configuration problem is the engine's job.
type Resolver struct {
	dir     Directory
	history ActionHistory
}

// NewResolver creates a Resolver over the given directory and history.
func NewResolver(dir Directory, history ActionHistory) *Resolver {
	return &Resolver{dir: dir, history: history}
}

// EligiblePrincipals evaluates the step's role rule for the given item. For
// group-granted rules the owning group is returned alongside the expanded
// members, so callers can keep group-scoped task state.
func (r *Resolver) EligiblePrincipals(
	ctx context.Context,
	item model.WorkflowItem,
	step model.StepDefinition,
) (principals []string, groupID string, err error) {
	switch step.Role.Kind {
	case model.RoleKindGroup:
		members, err := r.dir.GroupMembers(ctx, step.Role.Group)
		if err != nil {
			return nil, "", fmt.Errorf("resolve group %q: %w", step.Role.Group, err)
		}
		return dedupe(members), step.Role.Group, nil

	case model.RoleKindCollection:
		group, err := r.dir.CollectionGroup(ctx, item.CollectionID, step.ID)
		if err != nil {
			return nil, "", fmt.Errorf("resolve collection %q binding: %w", item.CollectionID, err)
		}
		if group == "" {
			return nil, "", nil
		}
		members, err := r.dir.GroupMembers(ctx, group)
		if err != nil {
			return nil, "", fmt.Errorf("resolve group %q: %w", group, err)
		}
		return dedupe(members), group, nil

	case model.RoleKindStepActor:
		actor, err := r.history.StepActor(ctx, item.ID, step.Role.Step)
		if err != nil {
			return nil, "", fmt.Errorf("resolve actor of step %q: %w", step.Role.Step, err)
		}
		if actor == "" {
			return nil, "", nil
		}
		return []string{actor}, "", nil

	default:
		return nil, "", fmt.Errorf("unknown role kind %q", step.Role.Kind)
	}
}

// dedupe returns a sorted copy with duplicate principal IDs removed.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
