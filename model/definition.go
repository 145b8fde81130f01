package model

// Quorum policy constants. ANY means a single finisher satisfies the step;
// ALL means every principal in the open-time roster must finish.
const (
	QuorumAny = "any"
	QuorumAll = "all"
)

// Role rule kinds. The eligibility model is a tagged variant, not a class
// hierarchy: exactly one kind applies per step.
const (
	RoleKindGroup      = "group"
	RoleKindCollection = "collection"
	RoleKindStepActor  = "step_actor"
)

// DefinitionFile is the root structure of a workflow definition file. Each
// file declares one or more workflow types.
type DefinitionFile struct {
	Workflows []WorkflowDefinition `yaml:"workflows" json:"workflows"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// WorkflowDefinition describes, for one workflow type, the ordered set of
// review steps a work item passes through. It is immutable after loading.
type WorkflowDefinition struct {
	Type  string           `yaml:"type"  json:"type"`
	Name  string           `yaml:"name"  json:"name"`
	Steps []StepDefinition `yaml:"steps" json:"steps"`
}

// StepDefinition is one configured stage of review: what must be done, who
// may do it, and how many of them must finish.
type StepDefinition struct {
	ID     string   `yaml:"id"     json:"id"`
	Name   string   `yaml:"name"   json:"name"`
	Action string   `yaml:"action" json:"action"`
	Quorum string   `yaml:"quorum" json:"quorum"`
	Role   RoleRule `yaml:"role"   json:"role"`
}

// RoleRule is the tagged eligibility variant for a step.
//
//   - kind "group": any member of the named group may act.
//   - kind "collection": any member of the group bound to the item's
//     collection for this step may act.
//   - kind "step_actor": only the single principal who completed the
//     referenced earlier step may act.
type RoleRule struct {
	Kind  string `yaml:"kind"  json:"kind"`
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	Step  string `yaml:"step,omitempty"  json:"step,omitempty"`
}

// StepIndex returns the ordinal position of the step with the given ID, or
// -1 if the workflow has no such step.
func (w WorkflowDefinition) StepIndex(stepID string) int {
	for i, s := range w.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

// Step returns the step definition with the given ID.
func (w WorkflowDefinition) Step(stepID string) (StepDefinition, bool) {
	i := w.StepIndex(stepID)
	if i < 0 {
		return StepDefinition{}, false
	}
	return w.Steps[i], true
}
