// Package models defines request and response payloads for the FlowSync API.
package models

import (
	"encoding/json"
	"time"
)

// AgentAction enumerates the operations an agent can perform on a conversation.
type AgentAction string

const (
	AgentActionSendMessage      AgentAction = "send_message"
	AgentActionAssign           AgentAction = "assign"
	AgentActionClose            AgentAction = "close"
	AgentActionReturnToBot      AgentAction = "return_to_bot"
	AgentActionGetConversations AgentAction = "get_conversations"
)

// AgentActionRequest is the payload for the agent action endpoint.
type AgentActionRequest struct {
	Action         AgentAction `json:"action"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Message        string      `json:"message,omitempty"`
	AgentID        string      `json:"agent_id,omitempty"`
	PhoneNumber    string      `json:"phone_number,omitempty"`
	Status         string      `json:"status,omitempty"`
}

// Validate checks the action-specific required fields. It performs no
// mutation; handlers call it before touching the store.
func (r *AgentActionRequest) Validate() error {
	switch r.Action {
	case AgentActionSendMessage:
		if r.ConversationID == "" {
			return ErrMissingConvID
		}
		if r.Message == "" {
			return ErrMissingMessage
		}
		if r.AgentID == "" {
			return ErrMissingAgentID
		}
	case AgentActionAssign:
		if r.ConversationID == "" {
			return ErrMissingConvID
		}
		if r.AgentID == "" {
			return ErrMissingAgentID
		}
	case AgentActionClose, AgentActionReturnToBot:
		if r.ConversationID == "" {
			return ErrMissingConvID
		}
	case AgentActionGetConversations:
		// No required fields.
	default:
		return ErrUnknownAction
	}
	return nil
}

// InboundRequest is the generic (test) intake shape; the provider-specific
// shapes are handled by the inbound package.
type InboundRequest struct {
	PhoneNumber  string `json:"phone_number"`
	Message      string `json:"message"`
	CustomerName string `json:"customer_name,omitempty"`
}

// Validate checks required intake fields.
func (r *InboundRequest) Validate() error {
	if r.PhoneNumber == "" {
		return ErrMissingPhone
	}
	if r.Message == "" {
		return ErrMissingMessage
	}
	return nil
}

// BotConfigUpdate is the payload for partial bot configuration updates.
// Nil fields are left unchanged.
type BotConfigUpdate struct {
	IsBotActive        *bool     `json:"is_bot_active,omitempty"`
	WelcomeMessage     *string   `json:"welcome_message,omitempty"`
	BusinessContext    *string   `json:"business_context,omitempty"`
	EscalationKeywords *[]string `json:"escalation_keywords,omitempty"`
}

// IntegrationType identifies the kind of channel integration.
type IntegrationType string

const (
	IntegrationTypeTelegram IntegrationType = "telegram"
	IntegrationTypeWebhook  IntegrationType = "webhook"
)

// IntegrationStatus is the health of an integration as last observed.
type IntegrationStatus string

const (
	IntegrationStatusActive IntegrationStatus = "active"
	IntegrationStatusError  IntegrationStatus = "error"
)

// Integration ties an external channel (Telegram bot, generic webhook) to a
// user account. Credentials and config are opaque JSON.
type Integration struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        IntegrationType   `json:"type"`
	Name        string            `json:"name"`
	Credentials json.RawMessage   `json:"credentials,omitempty"`
	Config      json.RawMessage   `json:"config,omitempty"`
	Status      IntegrationStatus `json:"status"`
	LastSyncAt  time.Time         `json:"last_sync_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TelegramCredentials is the credential payload stored for Telegram
// integrations.
type TelegramCredentials struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// TelegramActionRequest is the payload for the Telegram integration endpoint.
type TelegramActionRequest struct {
	Action        string `json:"action"` // test | send | save
	IntegrationID string `json:"integration_id,omitempty"`
	BotToken      string `json:"bot_token,omitempty"`
	ChatID        string `json:"chat_id,omitempty"`
	Message       string `json:"message,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Workflow is an automation triggered by a webhook integration.
type Workflow struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Name                 string    `json:"name"`
	TriggerIntegrationID string    `json:"trigger_integration_id"`
	IsActive             bool      `json:"is_active"`
	RunCount             int64     `json:"run_count"`
	LastRunAt            time.Time `json:"last_run_at,omitempty"`
}

// WorkflowLog records one workflow execution.
type WorkflowLog struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	InputData  json.RawMessage `json:"input_data,omitempty"`
	OutputData json.RawMessage `json:"output_data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
