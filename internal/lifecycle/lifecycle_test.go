package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kevinvdv/reviewflow/internal/config"
	"github.com/kevinvdv/reviewflow/model"
)

func testItem() model.WorkflowItem {
	return model.WorkflowItem{
		ID:           "item-1",
		SubmissionID: "sub-1",
		WorkflowType: "review.default",
		TenantID:     "tenant-1",
	}
}

func TestNewService_noopWithoutBaseURL(t *testing.T) {
	svc := NewService(config.LifecycleConfig{})
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("service type = %T, want noopService", svc)
	}
	if err := svc.Archive(context.Background(), testItem()); err != nil {
		t.Errorf("noop Archive error: %v", err)
	}
}

func TestHTTPService_callbackPaths(t *testing.T) {
	var paths []string
	var payloads []callbackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var p callbackPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		payloads = append(payloads, p)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	svc := NewService(config.LifecycleConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	ctx := context.Background()
	item := testItem()

	if err := svc.Archive(ctx, item); err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	if err := svc.ReturnToWorkspace(ctx, item, "needs fixes"); err != nil {
		t.Fatalf("ReturnToWorkspace error: %v", err)
	}
	if err := svc.Discard(ctx, item, "duplicate"); err != nil {
		t.Fatalf("Discard error: %v", err)
	}

	want := []string{
		"/submissions/sub-1/archive",
		"/submissions/sub-1/return",
		"/submissions/sub-1/discard",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if payloads[0].Reason != "" {
		t.Errorf("archive reason = %q, want empty", payloads[0].Reason)
	}
	if payloads[1].Reason != "needs fixes" {
		t.Errorf("return reason = %q", payloads[1].Reason)
	}
	if payloads[2].ItemID != "item-1" || payloads[2].TenantID != "tenant-1" {
		t.Errorf("discard payload = %+v", payloads[2])
	}
}

func TestHTTPService_non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewService(config.LifecycleConfig{BaseURL: srv.URL, Timeout: time.Second})
	if err := svc.Archive(context.Background(), testItem()); err == nil {
		t.Fatal("expected error on 404")
	}
}
