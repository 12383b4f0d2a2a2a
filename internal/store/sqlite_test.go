package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowsync/flowsync/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "sqlite_store_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	dbPath := filepath.Join(tempDir, "test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGetConversation(t *testing.T) {
	s := newTestSQLiteStore(t)

	conv := &models.Conversation{
		PhoneNumber:   "5511999990000",
		CustomerName:  "Maria",
		Status:        models.ConversationStatusActive,
		LastMessageAt: time.Now().UTC(),
	}
	if err := s.CreateConversation(conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("CreateConversation did not assign an ID")
	}
	if conv.Version != 1 {
		t.Errorf("expected version 1 on create, got %d", conv.Version)
	}

	got, err := s.GetConversationByPhone("5511999990000")
	if err != nil {
		t.Fatalf("GetConversationByPhone failed: %v", err)
	}
	if got == nil || got.ID != conv.ID || got.CustomerName != "Maria" {
		t.Errorf("unexpected conversation: %+v", got)
	}

	missing, err := s.GetConversation("no-such-id")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing conversation, got %+v", missing)
	}
}

func TestSQLiteStore_CreateConversationDuplicatePhone(t *testing.T) {
	s := newTestSQLiteStore(t)

	first := &models.Conversation{PhoneNumber: "5511999990000", Status: models.ConversationStatusActive}
	if err := s.CreateConversation(first); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	dup := &models.Conversation{PhoneNumber: "5511999990000", Status: models.ConversationStatusActive}
	err := s.CreateConversation(dup)
	if !errors.Is(err, models.ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestSQLiteStore_UpdateConversationVersionConflict(t *testing.T) {
	s := newTestSQLiteStore(t)

	conv := &models.Conversation{PhoneNumber: "5511999990000", Status: models.ConversationStatusActive}
	if err := s.CreateConversation(conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Two readers load the same version; the second write must lose.
	stale, err := s.GetConversation(conv.ID)
	if err != nil || stale == nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	conv.Status = models.ConversationStatusWaitingHuman
	if err := s.UpdateConversation(conv); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	if conv.Version != 2 {
		t.Errorf("expected version bump to 2, got %d", conv.Version)
	}

	stale.Status = models.ConversationStatusClosed
	err = s.UpdateConversation(stale)
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict for stale write, got %v", err)
	}

	// The winning write survived.
	got, err := s.GetConversation(conv.ID)
	if err != nil || got == nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Status != models.ConversationStatusWaitingHuman {
		t.Errorf("expected waiting_human after stale write rejected, got %q", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2, got %d", got.Version)
	}
}

func TestSQLiteStore_UpdateConversationNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	ghost := &models.Conversation{ID: "no-such-id", Status: models.ConversationStatusActive, Version: 1}
	err := s.UpdateConversation(ghost)
	if !errors.Is(err, models.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestSQLiteStore_RecentMessagesChronological(t *testing.T) {
	s := newTestSQLiteStore(t)

	conv := &models.Conversation{PhoneNumber: "5511999990000", Status: models.ConversationStatusActive}
	if err := s.CreateConversation(conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := &models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderUser,
			Content:        string(rune('a' + i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddMessage(msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	msgs, err := s.GetRecentMessages(conv.ID, 3)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "c" || msgs[2].Content != "e" {
		t.Errorf("expected chronological window of most recent messages, got %q..%q", msgs[0].Content, msgs[2].Content)
	}
}

func TestSQLiteStore_BotConfigRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	cfg, err := s.GetBotConfig()
	if err != nil {
		t.Fatalf("GetBotConfig failed: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config before save, got %+v", cfg)
	}

	want := models.DefaultBotConfig()
	want.IsBotActive = false
	want.EscalationKeywords = []string{"gerente"}
	if err := s.SaveBotConfig(&want); err != nil {
		t.Fatalf("SaveBotConfig failed: %v", err)
	}

	cfg, err = s.GetBotConfig()
	if err != nil {
		t.Fatalf("GetBotConfig failed: %v", err)
	}
	if cfg == nil || cfg.IsBotActive || len(cfg.EscalationKeywords) != 1 || cfg.EscalationKeywords[0] != "gerente" {
		t.Errorf("unexpected config after round trip: %+v", cfg)
	}
}
