package definition

import (
	"fmt"

	"github.com/kevinvdv/reviewflow/model"
)

// VError describes a single validation error in a definition file.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates workflow definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definition files.
func (v *Validator) Validate(files []model.DefinitionFile) []VError {
	var errs []VError
	seenTypes := make(map[string]string)

	for i, f := range files {
		for j, w := range f.Workflows {
			prefix := fmt.Sprintf("files[%d].workflows[%d]", i, j)

			if w.Type == "" {
				errs = append(errs, VError{Path: prefix + ".type", Code: "REQUIRED", Message: "workflow type is required"})
				continue
			}
			if prev, dup := seenTypes[w.Type]; dup {
				errs = append(errs, VError{
					Path: prefix + ".type", Code: "DUPLICATE",
					Message: fmt.Sprintf("workflow type %q already defined at %s", w.Type, prev),
				})
			}
			seenTypes[w.Type] = prefix

			errs = append(errs, v.validateWorkflow(prefix, w)...)
		}
	}
	return errs
}

func (v *Validator) validateWorkflow(prefix string, w model.WorkflowDefinition) []VError {
	var errs []VError

	if len(w.Steps) == 0 {
		errs = append(errs, VError{Path: prefix + ".steps", Code: "REQUIRED", Message: "at least one step is required"})
		return errs
	}

	stepIDs := make(map[string]int, len(w.Steps))
	for i, s := range w.Steps {
		sp := fmt.Sprintf("%s.steps[%d]", prefix, i)

		if s.ID == "" {
			errs = append(errs, VError{Path: sp + ".id", Code: "REQUIRED", Message: "step id is required"})
			continue
		}
		if _, dup := stepIDs[s.ID]; dup {
			errs = append(errs, VError{
				Path: sp + ".id", Code: "DUPLICATE",
				Message: fmt.Sprintf("step id %q already used in this workflow", s.ID),
			})
		}
		stepIDs[s.ID] = i

		switch s.Quorum {
		case model.QuorumAny, model.QuorumAll:
		default:
			errs = append(errs, VError{
				Path: sp + ".quorum", Code: "INVALID",
				Message: fmt.Sprintf("quorum %q must be %q or %q", s.Quorum, model.QuorumAny, model.QuorumAll),
			})
		}

		errs = append(errs, v.validateRole(sp+".role", s.Role, w, i)...)
	}
	return errs
}

func (v *Validator) validateRole(path string, role model.RoleRule, w model.WorkflowDefinition, stepIdx int) []VError {
	var errs []VError

	switch role.Kind {
	case model.RoleKindGroup:
		if role.Group == "" {
			errs = append(errs, VError{Path: path + ".group", Code: "REQUIRED", Message: "group role requires a group"})
		}
	case model.RoleKindCollection:
		// Nothing further: the group binding comes from the item's collection.
	case model.RoleKindStepActor:
		if role.Step == "" {
			errs = append(errs, VError{Path: path + ".step", Code: "REQUIRED", Message: "step_actor role requires a step reference"})
			break
		}
		ref := w.StepIndex(role.Step)
		if ref < 0 {
			errs = append(errs, VError{
				Path: path + ".step", Code: "UNKNOWN_REF",
				Message: fmt.Sprintf("step_actor role references unknown step %q", role.Step),
			})
		} else if ref >= stepIdx {
			errs = append(errs, VError{
				Path: path + ".step", Code: "INVALID",
				Message: fmt.Sprintf("step_actor role must reference an earlier step, got %q", role.Step),
			})
		}
	default:
		errs = append(errs, VError{
			Path: path + ".kind", Code: "INVALID",
			Message: fmt.Sprintf("role kind %q must be one of %q, %q, %q",
				role.Kind, model.RoleKindGroup, model.RoleKindCollection, model.RoleKindStepActor),
		})
	}
	return errs
}
