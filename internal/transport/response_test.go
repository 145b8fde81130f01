package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kevinvdv/reviewflow/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"id": "abc"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["id"] != "abc" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteError_statusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{model.NewBadRequestError("bad"), http.StatusBadRequest},
		{model.NewUnauthorizedError("no"), http.StatusUnauthorized},
		{model.NewForbiddenError("no"), http.StatusForbidden},
		{model.NewNotFoundError("gone"), http.StatusNotFound},
		{model.NewUnknownWorkflowTypeError("bogus"), http.StatusNotFound},
		{model.NewNoEligiblePrincipalsError("review"), http.StatusUnprocessableEntity},
		{model.NewNotEligibleError("user-1", "review"), http.StatusForbidden},
		{model.NewAlreadyClaimedError("review"), http.StatusConflict},
		{model.NewNotClaimedError("user-1", "review"), http.StatusConflict},
		{model.NewItemNotActiveError("item-1", model.ItemStatusApproved), http.StatusConflict},
		{model.NewConcurrentTransitionError("item-1"), http.StatusConflict},
		{model.NewInternalError(), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(w, tc.err)
		if w.Code != tc.status {
			t.Errorf("WriteError(%v) status = %d, want %d", tc.err, w.Code, tc.status)
		}
	}
}

func TestWriteError_envelopeShape(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, model.NewAlreadyClaimedError("review"))

	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error == nil || body.Error.Code != model.ErrAlreadyClaimed {
		t.Errorf("error envelope = %+v", body.Error)
	}
}

func TestWriteError_plainErrorBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Code != model.ErrInternalError {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Error.Code)
	}
}

func TestWriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNotFound(w, "item not found")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
