package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowsync/flowsync/internal/models"
)

var processedOutput = json.RawMessage(`{"processed":true}`)

// hooksHandler receives generic webhook calls addressed to a saved webhook
// integration and triggers the workflows attached to it.
func (s *Server) hooksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	defer r.Body.Close()

	webhookID := r.URL.Query().Get("id")
	if webhookID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing webhook ID"))
		return
	}

	input := json.RawMessage(`{}`)
	if r.Method == http.MethodPost {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			slog.Error("Server.hooksHandler: failed to read body", "webhookID", webhookID, "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
			return
		}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
				return
			}
			input = raw
		}
	}

	integ, err := s.store.GetIntegration(webhookID, models.IntegrationTypeWebhook)
	if err != nil {
		slog.Error("Server.hooksHandler: failed to load integration", "webhookID", webhookID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load integration"))
		return
	}
	if integ == nil {
		slog.Warn("Server.hooksHandler: unknown webhook", "webhookID", webhookID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Webhook not found"))
		return
	}

	now := time.Now().UTC()
	if err := s.store.TouchIntegration(integ.ID, models.IntegrationStatusActive, now); err != nil {
		slog.Error("Server.hooksHandler: failed to touch integration", "webhookID", webhookID, "error", err)
	}

	workflows, err := s.store.ListWorkflowsByTrigger(integ.ID)
	if err != nil {
		slog.Error("Server.hooksHandler: failed to list workflows", "webhookID", webhookID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process webhook"))
		return
	}
	for _, wf := range workflows {
		logEntry := &models.WorkflowLog{
			WorkflowID: wf.ID,
			UserID:     integ.UserID,
			Status:     "success",
			InputData:  input,
			OutputData: processedOutput,
		}
		if err := s.store.AddWorkflowLog(logEntry); err != nil {
			slog.Error("Server.hooksHandler: failed to log workflow run", "workflowID", wf.ID, "error", err)
			continue
		}
		if err := s.store.RecordWorkflowRun(wf.ID, now); err != nil {
			slog.Error("Server.hooksHandler: failed to record workflow run", "workflowID", wf.ID, "error", err)
		}
	}
	slog.Info("Server.hooksHandler: webhook processed", "webhookID", webhookID, "workflows", len(workflows))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Webhook processed"))
}
