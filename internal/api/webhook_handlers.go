package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/flowsync/flowsync/internal/inbound"
	"github.com/flowsync/flowsync/internal/models"
)

// maxWebhookBody caps the inbound webhook payload size.
const maxWebhookBody = 1 << 20

// webhookHandler is the single intake endpoint for all message providers.
// GET serves the Meta verification handshake; POST accepts provider
// payloads, sniffs the shape, and runs each extracted message through the
// conversation pipeline.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		slog.Debug("Server.verifyWebhook: handshake accepted")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(q.Get("hub.challenge"))); err != nil {
			slog.Error("Server.verifyWebhook: failed to write challenge", "error", err)
		}
		return
	}
	slog.Warn("Server.verifyWebhook: handshake rejected", "mode", q.Get("hub.mode"))
	writeJSONResponse(w, http.StatusForbidden, models.Error("Verification failed"))
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("Server.receiveWebhook: failed to read body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
		return
	}

	parsed, ok := inbound.Parse(raw)
	if !ok {
		// Unknown shapes are acknowledged so providers do not retry.
		slog.Debug("Server.receiveWebhook: unrecognized payload shape", "bytes", len(raw))
		writeJSONResponse(w, http.StatusOK, models.Success())
		return
	}
	slog.Debug("Server.receiveWebhook: payload matched", "provider", parsed.Provider, "messages", len(parsed.Messages))

	results := make([]*models.ProcessResult, 0, len(parsed.Messages))
	for _, msg := range parsed.Messages {
		if err := msg.Validate(); err != nil {
			slog.Warn("Server.receiveWebhook: skipping invalid message", "provider", parsed.Provider, "error", err)
			continue
		}
		result, err := s.controller.ProcessInbound(r.Context(), msg)
		if err != nil {
			slog.Error("Server.receiveWebhook: failed to process message", "provider", parsed.Provider, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
			return
		}
		s.deliverReply(r, msg.PhoneNumber, result)
		results = append(results, result)
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithResult(results))
}

// deliverReply forwards a bot reply to the customer's channel when an
// outbound messaging service is configured. Delivery failures do not fail
// the webhook; the provider already got its ack.
func (s *Server) deliverReply(r *http.Request, phone string, result *models.ProcessResult) {
	if s.msgService == nil || result.Status != models.ProcessStatusAnswered || result.Response == "" {
		return
	}
	to, err := s.msgService.ValidateAndCanonicalizeRecipient(phone)
	if err != nil {
		slog.Warn("Server.deliverReply: invalid recipient", "phone", phone, "error", err)
		return
	}
	if err := s.msgService.SendMessage(r.Context(), to, result.Response); err != nil {
		slog.Error("Server.deliverReply: failed to send reply", "to", to, "error", err)
	}
}
