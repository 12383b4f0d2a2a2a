package telegram

import (
	"context"
	"errors"
	"testing"
)

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	mock := &MockClient{Username: "flowsync_bot"}

	name, err := mock.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe failed: %v", err)
	}
	if name != "flowsync_bot" {
		t.Errorf("unexpected username %q", name)
	}

	if err := mock.SendMessage(context.Background(), "12345", "olá"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].ChatID != "12345" {
		t.Errorf("unexpected sent messages: %+v", mock.SentMessages)
	}
}

func TestMockClientErrors(t *testing.T) {
	mock := &MockClient{GetMeErr: errors.New("unauthorized"), SendErr: errors.New("forbidden")}

	if _, err := mock.GetMe(context.Background()); err == nil {
		t.Error("expected GetMe error")
	}
	if err := mock.SendMessage(context.Background(), "12345", "olá"); err == nil {
		t.Error("expected SendMessage error")
	}
	if len(mock.SentMessages) != 0 {
		t.Errorf("failed sends must not be recorded, got %+v", mock.SentMessages)
	}
}
