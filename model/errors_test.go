package model

import "testing"

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "item missing"}
	want := "NOT_FOUND: item missing"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewUnknownWorkflowTypeError(t *testing.T) {
	e := NewUnknownWorkflowTypeError("review.default")
	if e.Code != ErrUnknownWorkflowType {
		t.Errorf("Code = %q, want %q", e.Code, ErrUnknownWorkflowType)
	}
	want := `workflow type "review.default" is not configured`
	if e.Message != want {
		t.Errorf("Message = %q, want %q", e.Message, want)
	}
}

func TestNewNoEligiblePrincipalsError(t *testing.T) {
	e := NewNoEligiblePrincipalsError("review")
	if e.Code != ErrNoEligiblePrincipals {
		t.Errorf("Code = %q, want %q", e.Code, ErrNoEligiblePrincipals)
	}
}

func TestNewNotEligibleError(t *testing.T) {
	e := NewNotEligibleError("user-bob", "review")
	if e.Code != ErrNotEligible {
		t.Errorf("Code = %q, want %q", e.Code, ErrNotEligible)
	}
}

func TestNewAlreadyClaimedError(t *testing.T) {
	e := NewAlreadyClaimedError("review")
	if e.Code != ErrAlreadyClaimed {
		t.Errorf("Code = %q, want %q", e.Code, ErrAlreadyClaimed)
	}
}

func TestNewNotClaimedError(t *testing.T) {
	e := NewNotClaimedError("user-bob", "review")
	if e.Code != ErrNotClaimed {
		t.Errorf("Code = %q, want %q", e.Code, ErrNotClaimed)
	}
}

func TestNewItemNotActiveError(t *testing.T) {
	e := NewItemNotActiveError("item-1", ItemStatusApproved)
	if e.Code != ErrItemNotActive {
		t.Errorf("Code = %q, want %q", e.Code, ErrItemNotActive)
	}
}

func TestNewConcurrentTransitionError(t *testing.T) {
	e := NewConcurrentTransitionError("item-1")
	if e.Code != ErrConcurrentTransition {
		t.Errorf("Code = %q, want %q", e.Code, ErrConcurrentTransition)
	}
}

func TestNewConflictError(t *testing.T) {
	e := NewConflictError("duplicate key")
	if e.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", e.Code, ErrConflict)
	}
}

func TestNewInternalError(t *testing.T) {
	e := NewInternalError()
	if e.Code != ErrInternalError {
		t.Errorf("Code = %q, want %q", e.Code, ErrInternalError)
	}
}
