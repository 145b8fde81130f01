package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrForbidden     = "FORBIDDEN"
	ErrNotFound      = "NOT_FOUND"
	ErrConflict      = "CONFLICT"
	ErrInternalError = "INTERNAL_ERROR"
)

// Engine-specific error codes.
const (
	ErrUnknownWorkflowType  = "UNKNOWN_WORKFLOW_TYPE"
	ErrNoEligiblePrincipals = "NO_ELIGIBLE_PRINCIPALS"
	ErrNotEligible          = "NOT_ELIGIBLE"
	ErrAlreadyClaimed       = "ALREADY_CLAIMED"
	ErrNotClaimed           = "NOT_CLAIMED"
	ErrItemNotActive        = "ITEM_NOT_ACTIVE"
	ErrNotificationFailed   = "NOTIFICATION_FAILED"
	ErrConcurrentTransition = "CONCURRENT_TRANSITION"
)

// ErrorEnvelope is the standard error response envelope returned by the
// service. It implements the error interface.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewUnknownWorkflowTypeError returns an UNKNOWN_WORKFLOW_TYPE error. This is
// a fatal configuration problem: the referenced workflow definition does not
// exist and retrying will not change that.
func NewUnknownWorkflowTypeError(workflowType string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnknownWorkflowType,
		Message: fmt.Sprintf("workflow type %q is not configured", workflowType),
	}
}

// NewNoEligiblePrincipalsError returns a NO_ELIGIBLE_PRINCIPALS error. The
// step opened with an empty eligibility set; the item stalls at the step
// until an administrator corrects the directory or the definition.
func NewNoEligiblePrincipalsError(stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNoEligiblePrincipals,
		Message: fmt.Sprintf("step %q has no eligible principals", stepID),
	}
}

// NewNotEligibleError returns a NOT_ELIGIBLE error.
func NewNotEligibleError(principalID, stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNotEligible,
		Message: fmt.Sprintf("principal %q is not eligible for step %q", principalID, stepID),
	}
}

// NewAlreadyClaimedError returns an ALREADY_CLAIMED error.
func NewAlreadyClaimedError(stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrAlreadyClaimed,
		Message: fmt.Sprintf("step %q is already claimed by another principal", stepID),
	}
}

// NewNotClaimedError returns a NOT_CLAIMED error.
func NewNotClaimedError(principalID, stepID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNotClaimed,
		Message: fmt.Sprintf("principal %q holds no claim on step %q", principalID, stepID),
	}
}

// NewItemNotActiveError returns an ITEM_NOT_ACTIVE error.
func NewItemNotActiveError(itemID, status string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrItemNotActive,
		Message: fmt.Sprintf("workflow item %q is %s, not active", itemID, status),
	}
}

// NewConcurrentTransitionError returns a CONCURRENT_TRANSITION error. This
// should never surface while the per-item exclusion scope is correctly held;
// observing it indicates a locking bug.
func NewConcurrentTransitionError(itemID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrConcurrentTransition,
		Message: fmt.Sprintf("concurrent transition detected on workflow item %q", itemID),
	}
}
