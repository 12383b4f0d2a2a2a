package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
)

func seedConversation(t *testing.T, st store.Store, status models.ConversationStatus) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{
		PhoneNumber:   "+5511999990000",
		Status:        status,
		LastMessageAt: time.Now().UTC(),
	}
	if err := st.CreateConversation(conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestAgentSendMessageClaimsConversation(t *testing.T) {
	for _, status := range []models.ConversationStatus{
		models.ConversationStatusActive,
		models.ConversationStatusWaitingHuman,
	} {
		t.Run(string(status), func(t *testing.T) {
			st := store.NewInMemoryStore()
			conv := seedConversation(t, st, status)
			agents := NewAgentService(st)

			phone, err := agents.SendMessage(conv.ID, "Olá, em que posso ajudar?", "agent-1")
			if err != nil {
				t.Fatalf("SendMessage failed: %v", err)
			}
			if phone != "+5511999990000" {
				t.Errorf("expected phone number returned, got %q", phone)
			}

			got, _ := st.GetConversation(conv.ID)
			if got.Status != models.ConversationStatusWithHuman {
				t.Errorf("expected with_human, got %s", got.Status)
			}
			if got.AssignedAgentID != "agent-1" {
				t.Errorf("expected assignment, got %q", got.AssignedAgentID)
			}

			msgs, _ := st.GetRecentMessages(conv.ID, 0)
			if len(msgs) != 1 || msgs[0].Sender != models.SenderAgent {
				t.Errorf("expected one agent message, got %+v", msgs)
			}
		})
	}
}

func TestAgentClose(t *testing.T) {
	for _, status := range []models.ConversationStatus{
		models.ConversationStatusActive,
		models.ConversationStatusWaitingHuman,
		models.ConversationStatusWithHuman,
	} {
		t.Run(string(status), func(t *testing.T) {
			st := store.NewInMemoryStore()
			conv := &models.Conversation{
				PhoneNumber:     "+5511999990000",
				Status:          status,
				AssignedAgentID: "agent-1",
				LastMessageAt:   time.Now().UTC(),
			}
			if err := st.CreateConversation(conv); err != nil {
				t.Fatalf("CreateConversation failed: %v", err)
			}
			agents := NewAgentService(st)

			if err := agents.Close(conv.ID); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			got, _ := st.GetConversation(conv.ID)
			if got.Status != models.ConversationStatusClosed {
				t.Errorf("expected closed, got %s", got.Status)
			}
			if got.AssignedAgentID != "" {
				t.Errorf("expected assignment cleared, got %q", got.AssignedAgentID)
			}

			msgs, _ := st.GetRecentMessages(conv.ID, 0)
			if len(msgs) != 1 {
				t.Fatalf("close must append exactly one message, got %d", len(msgs))
			}
			if msgs[0].Sender != models.SenderBot || msgs[0].Content != FarewellMessage {
				t.Errorf("expected bot farewell, got %+v", msgs[0])
			}
		})
	}
}

func TestAgentReturnToBot(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedConversation(t, st, models.ConversationStatusWithHuman)
	agents := NewAgentService(st)

	if err := agents.Assign(conv.ID, "agent-1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if err := agents.ReturnToBot(conv.ID); err != nil {
		t.Fatalf("ReturnToBot failed: %v", err)
	}

	got, _ := st.GetConversation(conv.ID)
	if got.Status != models.ConversationStatusActive {
		t.Errorf("expected active, got %s", got.Status)
	}
	if got.AssignedAgentID != "" {
		t.Errorf("expected assignment cleared, got %q", got.AssignedAgentID)
	}
}

func TestAgentAssignReopensClosedConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedConversation(t, st, models.ConversationStatusClosed)
	agents := NewAgentService(st)

	if err := agents.Assign(conv.ID, "agent-2"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	got, _ := st.GetConversation(conv.ID)
	if got.Status != models.ConversationStatusWithHuman || got.AssignedAgentID != "agent-2" {
		t.Errorf("expected reopen under agent-2, got %+v", got)
	}
}

func TestAgentActionsOnMissingConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	agents := NewAgentService(st)

	if err := agents.Assign("missing", "agent-1"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("Assign: expected ErrConversationNotFound, got %v", err)
	}
	if _, err := agents.SendMessage("missing", "oi", "agent-1"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("SendMessage: expected ErrConversationNotFound, got %v", err)
	}
	if err := agents.Close("missing"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("Close: expected ErrConversationNotFound, got %v", err)
	}
	if err := agents.ReturnToBot("missing"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("ReturnToBot: expected ErrConversationNotFound, got %v", err)
	}
}

func TestAgentListOpenExcludesClosed(t *testing.T) {
	st := store.NewInMemoryStore()
	open := seedConversation(t, st, models.ConversationStatusWaitingHuman)
	closed := &models.Conversation{
		PhoneNumber:   "+5511999990001",
		Status:        models.ConversationStatusClosed,
		LastMessageAt: time.Now().UTC(),
	}
	if err := st.CreateConversation(closed); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	agents := NewAgentService(st)

	list, err := agents.ListOpen()
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != open.ID {
		t.Errorf("expected only the open conversation, got %+v", list)
	}
}

func TestUpdateWithRetryRecoversFromConflict(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := seedConversation(t, st, models.ConversationStatusActive)

	// A concurrent writer bumps the version behind our back.
	other, _ := st.GetConversation(conv.ID)
	other.CurrentIntent = models.IntentSupport
	if err := st.UpdateConversation(other); err != nil {
		t.Fatalf("concurrent update failed: %v", err)
	}

	stale := *conv
	err := updateWithRetry(st, &stale, func(cv *models.Conversation) {
		cv.Status = models.ConversationStatusWaitingHuman
	})
	if err != nil {
		t.Fatalf("updateWithRetry failed: %v", err)
	}

	got, _ := st.GetConversation(conv.ID)
	if got.Status != models.ConversationStatusWaitingHuman {
		t.Errorf("expected status applied after retry, got %s", got.Status)
	}
	if got.CurrentIntent != models.IntentSupport {
		t.Errorf("expected concurrent intent preserved, got %s", got.CurrentIntent)
	}
}
