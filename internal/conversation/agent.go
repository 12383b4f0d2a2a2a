package conversation

import (
	"time"

	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
)

// FarewellMessage is appended by the bot when an agent closes a
// conversation.
const FarewellMessage = "Atendimento encerrado. Obrigado pelo contato! 🙏 Se precisar de algo mais, é só enviar uma mensagem."

// AgentService applies operator actions to conversations.
type AgentService struct {
	store store.Store
}

// NewAgentService creates an agent service.
func NewAgentService(st store.Store) *AgentService {
	return &AgentService{store: st}
}

// load fetches the conversation or reports not-found.
func (a *AgentService) load(conversationID string) (*models.Conversation, error) {
	conv, err := a.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.ErrConversationNotFound
	}
	return conv, nil
}

// Assign hands the conversation to an agent. There is deliberately no
// precondition on the current status; assigning a closed conversation
// reopens it under the agent.
func (a *AgentService) Assign(conversationID, agentID string) error {
	conv, err := a.load(conversationID)
	if err != nil {
		return err
	}
	return updateWithRetry(a.store, conv, func(cv *models.Conversation) {
		cv.Status = models.ConversationStatusWithHuman
		cv.AssignedAgentID = agentID
	})
}

// SendMessage appends an agent message and claims the conversation for the
// agent. It returns the conversation's phone number so the caller can
// forward the text to the messaging provider.
func (a *AgentService) SendMessage(conversationID, message, agentID string) (string, error) {
	conv, err := a.load(conversationID)
	if err != nil {
		return "", err
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderAgent,
		Content:        message,
	}
	if err := a.store.AddMessage(msg); err != nil {
		return "", err
	}
	err = updateWithRetry(a.store, conv, func(cv *models.Conversation) {
		cv.Status = models.ConversationStatusWithHuman
		cv.AssignedAgentID = agentID
		cv.LastMessageAt = time.Now().UTC()
	})
	if err != nil {
		return "", err
	}
	return conv.PhoneNumber, nil
}

// Close ends the conversation: appends the canned farewell as a bot
// message, marks the conversation closed, and clears the assignment.
func (a *AgentService) Close(conversationID string) error {
	conv, err := a.load(conversationID)
	if err != nil {
		return err
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderBot,
		Content:        FarewellMessage,
	}
	if err := a.store.AddMessage(msg); err != nil {
		return err
	}
	return updateWithRetry(a.store, conv, func(cv *models.Conversation) {
		cv.Status = models.ConversationStatusClosed
		cv.AssignedAgentID = ""
	})
}

// ReturnToBot gives the conversation back to the bot.
func (a *AgentService) ReturnToBot(conversationID string) error {
	conv, err := a.load(conversationID)
	if err != nil {
		return err
	}
	return updateWithRetry(a.store, conv, func(cv *models.Conversation) {
		cv.Status = models.ConversationStatusActive
		cv.AssignedAgentID = ""
	})
}

// ListOpen returns all non-closed conversations with their message
// histories, most recently active first.
func (a *AgentService) ListOpen() ([]models.ConversationWithMessages, error) {
	return a.store.ListOpenConversations()
}
