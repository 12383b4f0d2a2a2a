package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flowsync/flowsync/internal/models"
)

// agentHandler executes human agent actions on conversations.
func (s *Server) agentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	defer r.Body.Close()

	var req models.AgentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.agentHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.agentHandler: validation failed", "action", req.Action, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	switch req.Action {
	case models.AgentActionGetConversations:
		convs, err := s.agents.ListOpen()
		if err != nil {
			slog.Error("Server.agentHandler: failed to list conversations", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.APISuccess{Success: true, Conversations: convs})

	case models.AgentActionAssign:
		if err := s.agents.Assign(req.ConversationID, req.AgentID); err != nil {
			s.writeAgentError(w, "assign", err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success())

	case models.AgentActionSendMessage:
		phone, err := s.agents.SendMessage(req.ConversationID, req.Message, req.AgentID)
		if err != nil {
			s.writeAgentError(w, "send_message", err)
			return
		}
		s.deliverAgentMessage(r, phone, req.Message)
		writeJSONResponse(w, http.StatusOK, models.APISuccess{Success: true, PhoneNumber: phone})

	case models.AgentActionClose:
		if err := s.agents.Close(req.ConversationID); err != nil {
			s.writeAgentError(w, "close", err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success())

	case models.AgentActionReturnToBot:
		if err := s.agents.ReturnToBot(req.ConversationID); err != nil {
			s.writeAgentError(w, "return_to_bot", err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success())
	}
}

func (s *Server) writeAgentError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, models.ErrConversationNotFound) {
		slog.Warn("Server.agentHandler: conversation not found", "action", action)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	slog.Error("Server.agentHandler: action failed", "action", action, "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to execute action"))
}

// deliverAgentMessage relays an agent message to the customer when an
// outbound channel is configured. The caller still receives the phone
// number, so a front end without a wired channel can deliver it another way.
func (s *Server) deliverAgentMessage(r *http.Request, phone, message string) {
	if s.msgService == nil {
		return
	}
	to, err := s.msgService.ValidateAndCanonicalizeRecipient(phone)
	if err != nil {
		slog.Warn("Server.deliverAgentMessage: invalid recipient", "phone", phone, "error", err)
		return
	}
	if err := s.msgService.SendMessage(r.Context(), to, message); err != nil {
		slog.Error("Server.deliverAgentMessage: failed to send", "to", to, "error", err)
	}
}
