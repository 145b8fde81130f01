// Package notify delivers task-activation notifications to the principals a
// newly opened step made eligible.
//
// The default implementation posts a JSON payload to a configured webhook and
// degrades to a no-op when no webhook is configured. Engine code depends only
// on the Service interface, so alternative transports slot in without
// touching workflow logic.
package notify

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

const userAgent = "reviewflow/0.1.0"

// Service is the notification surface exposed to the workflow engine.
type Service interface {
	NotifyActivated(ctx context.Context, item model.WorkflowItem, step model.StepDefinition, principals []string) error
}

// NewService builds a notification service backed by the configured webhook.
// When no webhook URL is configured, a noop implementation is returned.
func NewService(cfg config.NotifierConfig) Service {
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		return noopService{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookService{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// activationPayload is the JSON body posted to the webhook.
type activationPayload struct {
	ItemID       string   `json:"item_id"`
	SubmissionID string   `json:"submission_id"`
	WorkflowType string   `json:"workflow_type"`
	TenantID     string   `json:"tenant_id"`
	StepID       string   `json:"step_id"`
	StepName     string   `json:"step_name"`
	Action       string   `json:"action"`
	Principals   []string `json:"principals"`
}

type webhookService struct {
	url    string
	client *http.Client
}

func (s *webhookService) NotifyActivated(
	ctx context.Context,
	item model.WorkflowItem,
	step model.StepDefinition,
	principals []string,
) error {
	body, err := json.Marshal(activationPayload{
		ItemID:       item.ID,
		SubmissionID: item.SubmissionID,
		WorkflowType: item.WorkflowType,
		TenantID:     item.TenantID,
		StepID:       step.ID,
		StepName:     step.Name,
		Action:       step.Action,
		Principals:   principals,
	})
	if err != nil {
		return fmt.Errorf("marshal activation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build activation request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send activation notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &model.ErrorEnvelope{
			Code:    model.ErrNotificationFailed,
			Message: fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyActivated(context.Context, model.WorkflowItem, model.StepDefinition, []string) error {
	return nil
}
