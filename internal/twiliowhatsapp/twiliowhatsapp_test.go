package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "+5511999990000", "Olá")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].To != "+5511999990000" {
		t.Errorf("expected recipient %q, got %q", "+5511999990000", mock.SentMessages[0].To)
	}
	if mock.SentMessages[0].Body != "Olá" {
		t.Errorf("expected body %q, got %q", "Olá", mock.SentMessages[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	client, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("whatsapp:+10000000000"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.fromWhats != "whatsapp:+10000000000" {
		t.Errorf("unexpected from number %q", client.fromWhats)
	}
}
