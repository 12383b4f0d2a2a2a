// Package models defines the core data structures for FlowSync.
//
// It includes conversation, message, and bot configuration types shared
// across the intake, classification, and agent modules.
package models

import (
	"errors"
	"time"
)

// ConversationStatus tracks who currently owns a conversation.
type ConversationStatus string

const (
	// ConversationStatusActive indicates the bot owns the conversation.
	ConversationStatusActive ConversationStatus = "active"
	// ConversationStatusWaitingHuman indicates escalation was requested and the
	// conversation is queued for an agent.
	ConversationStatusWaitingHuman ConversationStatus = "waiting_human"
	// ConversationStatusWithHuman indicates an agent owns the conversation.
	ConversationStatusWithHuman ConversationStatus = "with_human"
	// ConversationStatusClosed indicates the conversation was closed. Terminal.
	ConversationStatusClosed ConversationStatus = "closed"
)

// IsValidConversationStatus checks if the given conversation status is supported.
func IsValidConversationStatus(s ConversationStatus) bool {
	switch s {
	case ConversationStatusActive, ConversationStatusWaitingHuman, ConversationStatusWithHuman, ConversationStatusClosed:
		return true
	default:
		return false
	}
}

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser is the customer on the other end of the phone number.
	SenderUser Sender = "user"
	// SenderBot is the automated reply engine.
	SenderBot Sender = "bot"
	// SenderAgent is a human operator.
	SenderAgent Sender = "agent"
)

// Intent is a coarse categorical label attached to bot-authored messages and
// the conversation's latest topic.
type Intent string

const (
	IntentSupport      Intent = "support"
	IntentFinancial    Intent = "financial"
	IntentSales        Intent = "sales"
	IntentHumanRequest Intent = "human_request"
	IntentGreeting     Intent = "greeting"
	IntentFarewell     Intent = "farewell"
	IntentUnknown      Intent = "unknown"
)

// IsValidIntent checks if the given intent label is supported.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentSupport, IntentFinancial, IntentSales, IntentHumanRequest, IntentGreeting, IntentFarewell, IntentUnknown:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrDuplicatePhone       = errors.New("conversation with this phone number already exists")
	ErrVersionConflict      = errors.New("conversation was modified concurrently")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMissingPhone         = errors.New("phone_number is required")
	ErrMissingMessage       = errors.New("message is required")
	ErrMissingConvID        = errors.New("conversation_id is required")
	ErrMissingAgentID       = errors.New("agent_id is required")
	ErrUnknownAction        = errors.New("unknown action")
)

// Conversation is a single customer phone-number thread, the unit of state
// and concurrency.
type Conversation struct {
	ID              string             `json:"id"`
	PhoneNumber     string             `json:"phone_number"`
	CustomerName    string             `json:"customer_name,omitempty"`
	Status          ConversationStatus `json:"status"`
	CurrentIntent   Intent             `json:"current_intent,omitempty"`
	AssignedAgentID string             `json:"assigned_agent_id,omitempty"`
	LastMessageAt   time.Time          `json:"last_message_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	// Version guards read-modify-write updates. Every successful update
	// increments it; stale writers get ErrVersionConflict.
	Version int64 `json:"-"`
}

// Message is one entry in a conversation transcript. Append-only.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	Intent         Intent    `json:"intent,omitempty"` // set only on bot messages
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationWithMessages pairs a conversation with its ordered transcript
// for the agent dashboard listing.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// BotConfig holds the operator-editable bot settings. Read-only to the
// Controller; written through the config endpoint.
type BotConfig struct {
	IsBotActive        bool      `json:"is_bot_active"`
	WelcomeMessage     string    `json:"welcome_message"`
	BusinessContext    string    `json:"business_context"`
	EscalationKeywords []string  `json:"escalation_keywords"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// Default bot configuration used when no config row exists. Matches the
// menu the welcome message advertises.
const (
	DefaultWelcomeMessage  = "Olá! 👋 Como posso ajudar?\n1️⃣ Suporte\n2️⃣ Financeiro\n3️⃣ Comercial\n4️⃣ Falar com atendente"
	DefaultBusinessContext = "Somos uma empresa de tecnologia."
)

// DefaultBotConfig returns the hard-coded fallback configuration. Callers
// receive a fresh value each time so the defaults are never mutated in place.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		IsBotActive:        true,
		WelcomeMessage:     DefaultWelcomeMessage,
		BusinessContext:    DefaultBusinessContext,
		EscalationKeywords: []string{"atendente", "humano", "pessoa"},
	}
}

// ClassificationResult is the Classifier's verdict for one inbound message.
// Confidence is informational only; downstream logic branches on
// RequiresHuman alone.
type ClassificationResult struct {
	Intent        Intent  `json:"intent"`
	Confidence    float64 `json:"confidence"`
	RequiresHuman bool    `json:"requiresHuman"`
	Response      string  `json:"response"`
}

// ProcessStatus reports how the Controller disposed of an inbound message.
type ProcessStatus string

const (
	// ProcessStatusAnswered means the bot classified and replied.
	ProcessStatusAnswered ProcessStatus = "answered"
	// ProcessStatusWithHuman means a human owns the conversation; the bot
	// stayed silent.
	ProcessStatusWithHuman ProcessStatus = "with_human"
	// ProcessStatusBotInactive means the global kill switch is off.
	ProcessStatusBotInactive ProcessStatus = "bot_inactive"
)

// ProcessResult is the Controller's outcome for one inbound message.
type ProcessResult struct {
	ConversationID string        `json:"conversation_id"`
	Status         ProcessStatus `json:"status"`
	Intent         Intent        `json:"intent,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	Response       string        `json:"response,omitempty"`
	RequiresHuman  bool          `json:"requires_human,omitempty"`
}

// MessageStatus is a delivery receipt status from a messaging provider.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Receipt is a delivery receipt event emitted by a messaging service.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}
