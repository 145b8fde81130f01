// Package lifecycle invokes the submission service's callbacks when a
// workflow item reaches a terminal state: archive on approval, return to the
// submitter's workspace on rejection, discard on abort.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kevinvdv/reviewflow/internal/config"
	"github.com/kevinvdv/reviewflow/model"
)

// Service is the terminal-state callback surface exposed to the workflow
// engine.
type Service interface {
	Archive(ctx context.Context, item model.WorkflowItem) error
	ReturnToWorkspace(ctx context.Context, item model.WorkflowItem, reason string) error
	Discard(ctx context.Context, item model.WorkflowItem, reason string) error
}

// NewService builds a lifecycle service backed by the configured submission
// service. When no base URL is configured, a noop implementation is returned.
func NewService(cfg config.LifecycleConfig) Service {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return noopService{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpService{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

// callbackPayload is the JSON body posted to the submission service.
type callbackPayload struct {
	ItemID       string `json:"item_id"`
	WorkflowType string `json:"workflow_type"`
	TenantID     string `json:"tenant_id"`
	Reason       string `json:"reason,omitempty"`
}

type httpService struct {
	base   string
	client *http.Client
}

func (s *httpService) Archive(ctx context.Context, item model.WorkflowItem) error {
	return s.post(ctx, item, "archive", "")
}

func (s *httpService) ReturnToWorkspace(ctx context.Context, item model.WorkflowItem, reason string) error {
	return s.post(ctx, item, "return", reason)
}

func (s *httpService) Discard(ctx context.Context, item model.WorkflowItem, reason string) error {
	return s.post(ctx, item, "discard", reason)
}

func (s *httpService) post(ctx context.Context, item model.WorkflowItem, action, reason string) error {
	body, err := json.Marshal(callbackPayload{
		ItemID:       item.ID,
		WorkflowType: item.WorkflowType,
		TenantID:     item.TenantID,
		Reason:       reason,
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", action, err)
	}

	url := fmt.Sprintf("%s/submissions/%s/%s", s.base, item.SubmissionID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("call submission %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("submission %s returned %d: %s",
			action, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Archive(context.Context, model.WorkflowItem) error                   { return nil }
func (noopService) ReturnToWorkspace(context.Context, model.WorkflowItem, string) error { return nil }
func (noopService) Discard(context.Context, model.WorkflowItem, string) error           { return nil }
