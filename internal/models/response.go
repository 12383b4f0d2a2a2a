// Package models defines the JSON envelope used by FlowSync API handlers.
package models

// APIError is the error envelope: {"error": "..."}.
type APIError struct {
	Error string `json:"error"`
}

// APISuccess is the success envelope: {"success": true, ...}. Extra payload
// travels in the typed fields; unused fields are omitted.
type APISuccess struct {
	Success       bool                       `json:"success"`
	Message       string                     `json:"message,omitempty"`
	Conversations []ConversationWithMessages `json:"conversations,omitempty"`
	PhoneNumber   string                     `json:"phone_number,omitempty"`
	Integration   *Integration               `json:"integration,omitempty"`
	Result        interface{}                `json:"result,omitempty"`
}

// Error creates an error envelope with a message.
func Error(message string) APIError {
	return APIError{Error: message}
}

// Success creates a bare success envelope.
func Success() APISuccess {
	return APISuccess{Success: true}
}

// SuccessWithMessage creates a success envelope carrying a human-readable message.
func SuccessWithMessage(message string) APISuccess {
	return APISuccess{Success: true, Message: message}
}

// SuccessWithResult creates a success envelope carrying arbitrary result data.
func SuccessWithResult(result interface{}) APISuccess {
	return APISuccess{Success: true, Result: result}
}
