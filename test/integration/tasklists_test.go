package integration

import (
	"net/http"
	"testing"

	"github.com/kevinvdv/reviewflow/model"
)

type taskList struct {
	Data       []model.TaskDescriptor `json:"data"`
	TotalCount int                    `json:"total_count"`
}

func (h *TestHarness) pooledFor(t *testing.T, claims TestClaims) taskList {
	t.Helper()
	resp := h.GET("/workflow/tasks/pooled", h.GenerateToken(claims))
	h.AssertStatus(resp, http.StatusOK)
	var list taskList
	h.ParseJSON(resp, &list)
	return list
}

func (h *TestHarness) claimedFor(t *testing.T, claims TestClaims) taskList {
	t.Helper()
	resp := h.GET("/workflow/tasks/claimed", h.GenerateToken(claims))
	h.AssertStatus(resp, http.StatusOK)
	var list taskList
	h.ParseJSON(resp, &list)
	return list
}

func TestPooledTaskListing(t *testing.T) {
	h := NewHarness(t)

	h.enter(t, "sub-300", "review.default", "col-physics")
	h.enter(t, "sub-301", "review.default", "col-physics")

	list := h.pooledFor(t, principal("user-alice"))
	if list.TotalCount != 2 {
		t.Fatalf("pooled for reviewer = %d, want 2", list.TotalCount)
	}
	task := list.Data[0]
	if task.StepID != "review" || task.StepName != "Initial Review" || task.Action != "review_submission" {
		t.Errorf("task = %+v", task)
	}

	// Carol is an editor, not a reviewer; nothing is pooled for her yet.
	if list := h.pooledFor(t, principal("user-carol")); list.TotalCount != 0 {
		t.Errorf("pooled for editor = %d, want 0", list.TotalCount)
	}
}

func TestClaimConsumesAnyQuorumPool(t *testing.T) {
	h := NewHarness(t)

	item := h.enter(t, "sub-302", "review.default", "col-physics")

	token := h.GenerateToken(principal("user-alice"))
	resp := h.POST("/workflow/items/"+item.ID+"/steps/review/claim", nil, token)
	h.AssertStatus(resp, http.StatusOK)
	resp.Body.Close()

	// The claim removed the whole pool, so Bob sees nothing to take.
	if list := h.pooledFor(t, principal("user-bob")); list.TotalCount != 0 {
		t.Errorf("pooled for bob after claim = %d, want 0", list.TotalCount)
	}

	claimed := h.claimedFor(t, principal("user-alice"))
	if claimed.TotalCount != 1 {
		t.Fatalf("claimed for alice = %d, want 1", claimed.TotalCount)
	}
	if !claimed.Data[0].Claimed || claimed.Data[0].ClaimedAt == nil {
		t.Errorf("claimed task = %+v", claimed.Data[0])
	}
}

func TestUnclaimRestoresPoolForPeers(t *testing.T) {
	h := NewHarness(t)

	item := h.enter(t, "sub-303", "review.default", "col-physics")
	base := "/workflow/items/" + item.ID + "/steps/review/"

	alice := h.GenerateToken(principal("user-alice"))
	resp := h.POST(base+"claim", nil, alice)
	h.AssertStatus(resp, http.StatusOK)
	resp.Body.Close()

	resp = h.POST(base+"unclaim", nil, alice)
	h.AssertStatus(resp, http.StatusOK)
	resp.Body.Close()

	if list := h.pooledFor(t, principal("user-bob")); list.TotalCount != 1 {
		t.Errorf("pooled for bob after unclaim = %d, want 1", list.TotalCount)
	}
	if list := h.claimedFor(t, principal("user-alice")); list.TotalCount != 0 {
		t.Errorf("claimed for alice after unclaim = %d, want 0", list.TotalCount)
	}
}

func TestAllQuorumPoolShrinksPerVoter(t *testing.T) {
	h := NewHarness(t)

	item := h.enter(t, "sub-304", "review.board", "")
	h.claimAndComplete(t, item.ID, "board", "user-alice", "approve")

	// Alice voted; only Dave still holds a pooled slot.
	if list := h.pooledFor(t, principal("user-alice")); list.TotalCount != 0 {
		t.Errorf("pooled for alice after vote = %d, want 0", list.TotalCount)
	}
	if list := h.pooledFor(t, principal("user-dave")); list.TotalCount != 1 {
		t.Errorf("pooled for dave = %d, want 1", list.TotalCount)
	}
}
