package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/flowsync/flowsync/internal/classifier"
	"github.com/flowsync/flowsync/internal/conversation"
	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
	"github.com/flowsync/flowsync/internal/twiliowhatsapp"
	"github.com/flowsync/flowsync/internal/whatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+55 (11) 99999-0000", "5511999990000", false},
		{"5511999990000", "5511999990000", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tc := range cases {
		got, err := canonicalizePhone(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWhatsAppServiceSendEmitsReceipt(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	if err := svc.SendMessage(context.Background(), "+55 11 99999-0000", "olá"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].To != "5511999990000" {
		t.Errorf("unexpected sent messages: %+v", mock.SentMessages)
	}

	select {
	case receipt := <-svc.Receipts():
		if receipt.Status != models.MessageStatusSent || receipt.To != "5511999990000" {
			t.Errorf("unexpected receipt: %+v", receipt)
		}
	default:
		t.Error("expected a sent receipt")
	}
}

func TestWhatsAppServiceStopGuardsEmits(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "+5511999990000", "olá"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}

	// A late event callback must be dropped, not panic on a closed channel.
	svc.safeEmitReceipt(models.Receipt{To: "5511999990000", Status: models.MessageStatusDelivered})
	svc.safeEmitResponse(models.InboundRequest{PhoneNumber: "+5511999990000", Message: "oi"})
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "+5511999990000", "olá"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioWebhookHandlerEmitsInbound(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+5511999990000")
	form.Set("Body", "oi")
	form.Set("ProfileName", "Maria")
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	svc.TwilioWebhookHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	select {
	case inbound := <-svc.Responses():
		if inbound.PhoneNumber != "+5511999990000" {
			t.Errorf("expected whatsapp: prefix stripped, got %q", inbound.PhoneNumber)
		}
		if inbound.Message != "oi" || inbound.CustomerName != "Maria" {
			t.Errorf("unexpected inbound: %+v", inbound)
		}
	default:
		t.Error("expected inbound message on responses channel")
	}
}

func TestTwilioWebhookHandlerMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+5511999990000")
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	svc.TwilioWebhookHandler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDispatcherRepliesOverService(t *testing.T) {
	st := store.NewInMemoryStore()
	controller := conversation.NewController(st, classifier.New(nil))
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	dispatcher := NewDispatcher(svc, controller)

	dispatcher.handle(context.Background(), models.InboundRequest{
		PhoneNumber:  "+5511999990000",
		Message:      "oi",
		CustomerName: "Maria",
	})

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected reply to be sent, got %d messages", len(mock.SentMessages))
	}
	if mock.SentMessages[0].Body != models.DefaultWelcomeMessage {
		t.Errorf("expected welcome message reply, got %q", mock.SentMessages[0].Body)
	}

	conv, err := st.GetConversationByPhone("5511999990000")
	if err != nil {
		t.Fatalf("GetConversationByPhone failed: %v", err)
	}
	if conv == nil {
		t.Fatal("expected conversation created under canonical phone")
	}
}

func TestDispatcherStaysQuietWhenHumanOwns(t *testing.T) {
	st := store.NewInMemoryStore()
	conv := &models.Conversation{
		PhoneNumber: "5511999990000",
		Status:      models.ConversationStatusWithHuman,
	}
	if err := st.CreateConversation(conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	controller := conversation.NewController(st, classifier.New(nil))
	mock := twiliowhatsapp.NewMockClient()
	dispatcher := NewDispatcher(NewTwilioService(mock), controller)

	dispatcher.handle(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "oi",
	})

	if len(mock.SentMessages) != 0 {
		t.Errorf("expected no reply while human owns the conversation, got %+v", mock.SentMessages)
	}
}
