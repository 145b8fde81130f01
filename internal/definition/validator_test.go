package definition

import (
	"strings"
	"testing"

	"github.com/kevinvdv/reviewflow/model"
)

func validFile() model.DefinitionFile {
	return model.DefinitionFile{
		Workflows: []model.WorkflowDefinition{
			{
				Type: "review.default",
				Steps: []model.StepDefinition{
					{ID: "review", Quorum: model.QuorumAny, Role: model.RoleRule{Kind: model.RoleKindCollection}},
					{ID: "final", Quorum: model.QuorumAll, Role: model.RoleRule{Kind: model.RoleKindGroup, Group: "board"}},
				},
			},
		},
	}
}

func TestValidator_valid(t *testing.T) {
	v := NewValidator()
	errs := v.Validate([]model.DefinitionFile{validFile()})
	if len(errs) != 0 {
		t.Fatalf("Validate() = %v, want no errors", errs)
	}
}

func findError(errs []VError, code, pathFragment string) bool {
	for _, e := range errs {
		if e.Code == code && strings.Contains(e.Path, pathFragment) {
			return true
		}
	}
	return false
}

func TestValidator_missing_type(t *testing.T) {
	f := validFile()
	f.Workflows[0].Type = ""

	errs := NewValidator().Validate([]model.DefinitionFile{f})
	if !findError(errs, "REQUIRED", ".type") {
		t.Errorf("want REQUIRED error on .type, got %v", errs)
	}
}

func TestValidator_duplicate_type(t *testing.T) {
	errs := NewValidator().Validate([]model.DefinitionFile{validFile(), validFile()})
	if !findError(errs, "DUPLICATE", ".type") {
		t.Errorf("want DUPLICATE error on .type, got %v", errs)
	}
}

func TestValidator_empty_steps(t *testing.T) {
	f := validFile()
	f.Workflows[0].Steps = nil

	errs := NewValidator().Validate([]model.DefinitionFile{f})
	if !findError(errs, "REQUIRED", ".steps") {
		t.Errorf("want REQUIRED error on .steps, got %v", errs)
	}
}

func TestValidator_duplicate_step_id(t *testing.T) {
	f := validFile()
	f.Workflows[0].Steps[1].ID = "review"

	errs := NewValidator().Validate([]model.DefinitionFile{f})
	if !findError(errs, "DUPLICATE", ".id") {
		t.Errorf("want DUPLICATE error on step id, got %v", errs)
	}
}

func TestValidator_invalid_quorum(t *testing.T) {
	f := validFile()
	f.Workflows[0].Steps[0].Quorum = "most"

	errs := NewValidator().Validate([]model.DefinitionFile{f})
	if !findError(errs, "INVALID", ".quorum") {
		t.Errorf("want INVALID error on .quorum, got %v", errs)
	}
}

func TestValidator_role_rules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*model.WorkflowDefinition)
		wantCode string
		wantPath string
	}{
		{
			name: "group role without group",
			mutate: func(w *model.WorkflowDefinition) {
				w.Steps[1].Role = model.RoleRule{Kind: model.RoleKindGroup}
			},
			wantCode: "REQUIRED",
			wantPath: ".role.group",
		},
		{
			name: "step_actor without step",
			mutate: func(w *model.WorkflowDefinition) {
				w.Steps[1].Role = model.RoleRule{Kind: model.RoleKindStepActor}
			},
			wantCode: "REQUIRED",
			wantPath: ".role.step",
		},
		{
			name: "step_actor referencing unknown step",
			mutate: func(w *model.WorkflowDefinition) {
				w.Steps[1].Role = model.RoleRule{Kind: model.RoleKindStepActor, Step: "missing"}
			},
			wantCode: "UNKNOWN_REF",
			wantPath: ".role.step",
		},
		{
			name: "step_actor referencing itself",
			mutate: func(w *model.WorkflowDefinition) {
				w.Steps[1].Role = model.RoleRule{Kind: model.RoleKindStepActor, Step: "final"}
			},
			wantCode: "INVALID",
			wantPath: ".role.step",
		},
		{
			name: "unknown role kind",
			mutate: func(w *model.WorkflowDefinition) {
				w.Steps[0].Role = model.RoleRule{Kind: "everyone"}
			},
			wantCode: "INVALID",
			wantPath: ".role.kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFile()
			tt.mutate(&f.Workflows[0])

			errs := NewValidator().Validate([]model.DefinitionFile{f})
			if !findError(errs, tt.wantCode, tt.wantPath) {
				t.Errorf("want %s error on %s, got %v", tt.wantCode, tt.wantPath, errs)
			}
		})
	}
}
