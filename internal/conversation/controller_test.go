package conversation

import (
	"context"
	"testing"

	"github.com/flowsync/flowsync/internal/classifier"
	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
)

// newTestController uses a nil GenAI client: deterministic rules still run
// and the generative fallback degrades to the fail-soft response.
func newTestController(st store.Store) *Controller {
	return NewController(st, classifier.New(nil))
}

func TestProcessInboundCreatesConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	result, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber:  "+5511999990000",
		Message:      "oi",
		CustomerName: "Maria",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if result.Status != models.ProcessStatusAnswered {
		t.Errorf("expected answered, got %s", result.Status)
	}
	if result.Intent != models.IntentGreeting {
		t.Errorf("expected greeting, got %s", result.Intent)
	}
	if result.Response != models.DefaultWelcomeMessage {
		t.Errorf("expected welcome message, got %q", result.Response)
	}

	conv, err := st.GetConversationByPhone("+5511999990000")
	if err != nil {
		t.Fatalf("GetConversationByPhone failed: %v", err)
	}
	if conv == nil {
		t.Fatal("expected conversation to be created")
	}
	if conv.Status != models.ConversationStatusActive {
		t.Errorf("greeting must not change status, got %s", conv.Status)
	}
	if conv.CustomerName != "Maria" {
		t.Errorf("expected customer name saved, got %q", conv.CustomerName)
	}
	if conv.CurrentIntent != models.IntentGreeting {
		t.Errorf("expected current intent greeting, got %s", conv.CurrentIntent)
	}

	msgs, err := st.GetRecentMessages(conv.ID, 0)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user + bot messages, got %d", len(msgs))
	}
	if msgs[0].Sender != models.SenderUser || msgs[1].Sender != models.SenderBot {
		t.Errorf("unexpected message senders: %s, %s", msgs[0].Sender, msgs[1].Sender)
	}
}

func TestProcessInboundEscalation(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	result, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "Quero falar com atendente",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if !result.RequiresHuman {
		t.Error("expected escalation")
	}
	if result.Response != classifier.TransferMessage {
		t.Errorf("expected transfer message, got %q", result.Response)
	}

	conv, _ := st.GetConversationByPhone("+5511999990000")
	if conv.Status != models.ConversationStatusWaitingHuman {
		t.Errorf("expected waiting_human, got %s", conv.Status)
	}

	// The hand-off completes when an agent takes the conversation.
	agents := NewAgentService(st)
	if err := agents.Assign(conv.ID, "agent-7"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	conv, _ = st.GetConversation(conv.ID)
	if conv.Status != models.ConversationStatusWithHuman {
		t.Errorf("expected with_human after assign, got %s", conv.Status)
	}
	if conv.AssignedAgentID != "agent-7" {
		t.Errorf("expected assignment, got %q", conv.AssignedAgentID)
	}
}

func TestProcessInboundWithHumanShortCircuit(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	conv := &models.Conversation{
		PhoneNumber:     "+5511999990000",
		Status:          models.ConversationStatusWithHuman,
		AssignedAgentID: "agent-1",
	}
	if err := st.CreateConversation(conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	result, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "oi",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if result.Status != models.ProcessStatusWithHuman {
		t.Errorf("expected with_human result, got %s", result.Status)
	}

	msgs, _ := st.GetRecentMessages(conv.ID, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
	if msgs[0].Sender != models.SenderUser {
		t.Errorf("expected user message, got sender %s", msgs[0].Sender)
	}

	got, _ := st.GetConversation(conv.ID)
	if got.Status != models.ConversationStatusWithHuman {
		t.Errorf("status must be unchanged, got %s", got.Status)
	}
}

func TestProcessInboundBotInactive(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	cfg := models.DefaultBotConfig()
	cfg.IsBotActive = false
	if err := st.SaveBotConfig(&cfg); err != nil {
		t.Fatalf("SaveBotConfig failed: %v", err)
	}

	result, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "oi",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if result.Status != models.ProcessStatusBotInactive {
		t.Errorf("expected bot_inactive, got %s", result.Status)
	}

	conv, _ := st.GetConversationByPhone("+5511999990000")
	msgs, _ := st.GetRecentMessages(conv.ID, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
}

func TestProcessInboundValidation(t *testing.T) {
	c := newTestController(store.NewInMemoryStore())

	if _, err := c.ProcessInbound(context.Background(), models.InboundRequest{Message: "oi"}); err != models.ErrMissingPhone {
		t.Errorf("expected ErrMissingPhone, got %v", err)
	}
	if _, err := c.ProcessInbound(context.Background(), models.InboundRequest{PhoneNumber: "+55"}); err != models.ErrMissingMessage {
		t.Errorf("expected ErrMissingMessage, got %v", err)
	}
}

func TestProcessInboundReusesConversation(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	first, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "oi",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	second, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "2",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Errorf("expected same conversation, got %s and %s", first.ConversationID, second.ConversationID)
	}
	if second.Intent != models.IntentFinancial {
		t.Errorf("expected financial for menu option 2, got %s", second.Intent)
	}
}

func TestProcessInboundMenuEscalation(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	result, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "4",
	})
	if err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if !result.RequiresHuman {
		t.Error("menu option 4 must escalate")
	}
	conv, _ := st.GetConversationByPhone("+5511999990000")
	if conv.Status != models.ConversationStatusWaitingHuman {
		t.Errorf("expected waiting_human, got %s", conv.Status)
	}
}

func TestProcessInboundFillsCustomerNameLater(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestController(st)

	if _, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber: "+5511999990000",
		Message:     "oi",
	}); err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	if _, err := c.ProcessInbound(context.Background(), models.InboundRequest{
		PhoneNumber:  "+5511999990000",
		Message:      "1",
		CustomerName: "Maria",
	}); err != nil {
		t.Fatalf("ProcessInbound failed: %v", err)
	}
	conv, _ := st.GetConversationByPhone("+5511999990000")
	if conv.CustomerName != "Maria" {
		t.Errorf("expected customer name backfilled, got %q", conv.CustomerName)
	}
}
