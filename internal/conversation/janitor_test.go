package conversation

import (
	"testing"
	"time"

	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
)

func TestJanitorSweep(t *testing.T) {
	st := store.NewInMemoryStore()
	stale := time.Now().Add(-100 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)

	seed := []*models.Conversation{
		{PhoneNumber: "111", Status: models.ConversationStatusActive, LastMessageAt: stale},
		{PhoneNumber: "222", Status: models.ConversationStatusActive, LastMessageAt: recent},
		{PhoneNumber: "333", Status: models.ConversationStatusWaitingHuman, LastMessageAt: stale},
		{PhoneNumber: "444", Status: models.ConversationStatusWithHuman, LastMessageAt: stale},
	}
	for _, conv := range seed {
		if err := st.CreateConversation(conv); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	closed := NewJanitor(st, 72*time.Hour).Sweep()
	if closed != 1 {
		t.Fatalf("expected 1 conversation closed, got %d", closed)
	}

	wantStatus := map[string]models.ConversationStatus{
		"111": models.ConversationStatusClosed,
		"222": models.ConversationStatusActive,
		"333": models.ConversationStatusWaitingHuman,
		"444": models.ConversationStatusWithHuman,
	}
	for phone, want := range wantStatus {
		conv, err := st.GetConversationByPhone(phone)
		if err != nil || conv == nil {
			t.Fatalf("GetConversationByPhone(%s) failed: %v", phone, err)
		}
		if conv.Status != want {
			t.Errorf("conversation %s: expected status %q, got %q", phone, want, conv.Status)
		}
	}
}

func TestJanitorSweepEmptyStore(t *testing.T) {
	st := store.NewInMemoryStore()
	if closed := NewJanitor(st, 0).Sweep(); closed != 0 {
		t.Errorf("expected no closures on empty store, got %d", closed)
	}
}
