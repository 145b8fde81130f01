package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kevinvdv/reviewflow/model"
)

// snapshot is an immutable collection of all workflow definitions indexed by
// type.
type snapshot struct {
	workflows map[string]model.WorkflowDefinition
	checksum  string
}

// Registry is a read-optimized, thread-safe store of all loaded workflow
// definitions. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definition files.
func NewRegistry(files []model.DefinitionFile) *Registry {
	r := &Registry{}
	r.Replace(files)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definition files.
func (r *Registry) Replace(files []model.DefinitionFile) {
	s := &snapshot{
		workflows: make(map[string]model.WorkflowDefinition),
	}

	var checksumParts []string
	for _, f := range files {
		checksumParts = append(checksumParts, f.Checksum)
		for _, w := range f.Workflows {
			s.workflows[w.Type] = w
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the workflow definition for the given workflow type.
func (r *Registry) Get(workflowType string) (model.WorkflowDefinition, bool) {
	w, ok := r.current().workflows[workflowType]
	return w, ok
}

// StepsFor returns the ordered steps for the given workflow type. The error
// is UNKNOWN_WORKFLOW_TYPE when the type is not configured.
func (r *Registry) StepsFor(workflowType string) ([]model.StepDefinition, error) {
	w, ok := r.Get(workflowType)
	if !ok {
		return nil, model.NewUnknownWorkflowTypeError(workflowType)
	}
	return w.Steps, nil
}

// FirstStep returns the first configured step of the given workflow type.
// A definition without steps cannot pass validation, but a registry fed
// directly is treated the same as an unconfigured type.
func (r *Registry) FirstStep(workflowType string) (model.StepDefinition, error) {
	steps, err := r.StepsFor(workflowType)
	if err != nil {
		return model.StepDefinition{}, err
	}
	if len(steps) == 0 {
		return model.StepDefinition{}, model.NewUnknownWorkflowTypeError(workflowType)
	}
	return steps[0], nil
}

// NextStep returns the step following the given one, or ok=false when the
// given step is the last configured step (the workflow exits on satisfying
// it).
func (r *Registry) NextStep(workflowType, stepID string) (model.StepDefinition, bool, error) {
	w, ok := r.Get(workflowType)
	if !ok {
		return model.StepDefinition{}, false, model.NewUnknownWorkflowTypeError(workflowType)
	}
	i := w.StepIndex(stepID)
	if i < 0 {
		return model.StepDefinition{}, false, model.NewNotFoundError(
			fmt.Sprintf("step %q not found in workflow type %q", stepID, workflowType),
		)
	}
	if i+1 >= len(w.Steps) {
		return model.StepDefinition{}, false, nil
	}
	return w.Steps[i+1], true, nil
}

// PreviousStep returns the step preceding the given one, or ok=false when the
// given step is the first configured step.
func (r *Registry) PreviousStep(workflowType, stepID string) (model.StepDefinition, bool, error) {
	w, ok := r.Get(workflowType)
	if !ok {
		return model.StepDefinition{}, false, model.NewUnknownWorkflowTypeError(workflowType)
	}
	i := w.StepIndex(stepID)
	if i < 0 {
		return model.StepDefinition{}, false, model.NewNotFoundError(
			fmt.Sprintf("step %q not found in workflow type %q", stepID, workflowType),
		)
	}
	if i == 0 {
		return model.StepDefinition{}, false, nil
	}
	return w.Steps[i-1], true, nil
}

// Step returns the step definition with the given ID within a workflow type.
func (r *Registry) Step(workflowType, stepID string) (model.StepDefinition, error) {
	w, ok := r.Get(workflowType)
	if !ok {
		return model.StepDefinition{}, model.NewUnknownWorkflowTypeError(workflowType)
	}
	step, found := w.Step(stepID)
	if !found {
		return model.StepDefinition{}, model.NewNotFoundError(
			fmt.Sprintf("step %q not found in workflow type %q", stepID, workflowType),
		)
	}
	return step, nil
}

// Types returns all configured workflow types, sorted.
func (r *Registry) Types() []string {
	s := r.current()
	types := make([]string, 0, len(s.workflows))
	for t := range s.workflows {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Checksum returns the combined checksum of all loaded definition files.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
