package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowsync/flowsync/internal/models"
)

// telegramHandler manages the Telegram channel integration. The action field
// selects between testing a bot token, sending through a saved integration,
// and saving credentials.
func (s *Server) telegramHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	defer r.Body.Close()

	var req models.TelegramActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.telegramHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	switch req.Action {
	case "test":
		s.telegramTest(w, r, req)
	case "send":
		s.telegramSend(w, r, req)
	case "save":
		s.telegramSave(w, r, req)
	default:
		slog.Warn("Server.telegramHandler: unknown action", "action", req.Action)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid action"))
	}
}

func (s *Server) telegramTest(w http.ResponseWriter, r *http.Request, req models.TelegramActionRequest) {
	if req.BotToken == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("bot_token is required"))
		return
	}
	bot, err := s.botFactory(req.BotToken)
	if err != nil {
		slog.Warn("Server.telegramTest: invalid bot token", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid bot token"))
		return
	}
	username, err := bot.GetMe(r.Context())
	if err != nil {
		slog.Warn("Server.telegramTest: getMe failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid bot token"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Connected as @"+username))
}

func (s *Server) telegramSend(w http.ResponseWriter, r *http.Request, req models.TelegramActionRequest) {
	if req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
		return
	}

	creds := models.TelegramCredentials{BotToken: req.BotToken, ChatID: req.ChatID}
	if req.IntegrationID != "" {
		integ, err := s.store.GetIntegration(req.IntegrationID, models.IntegrationTypeTelegram)
		if err != nil {
			slog.Error("Server.telegramSend: failed to load integration", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load integration"))
			return
		}
		if integ == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Integration not found"))
			return
		}
		if err := json.Unmarshal(integ.Credentials, &creds); err != nil {
			slog.Error("Server.telegramSend: corrupt credentials", "integrationID", integ.ID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Invalid stored credentials"))
			return
		}
	}
	if creds.BotToken == "" || creds.ChatID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("bot_token and chat_id are required"))
		return
	}

	bot, err := s.botFactory(creds.BotToken)
	if err != nil {
		slog.Warn("Server.telegramSend: invalid bot token", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid bot token"))
		return
	}
	if err := bot.SendMessage(r.Context(), creds.ChatID, req.Message); err != nil {
		slog.Error("Server.telegramSend: send failed", "error", err)
		s.touchIntegration(req.IntegrationID, models.IntegrationStatusError)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to send message"))
		return
	}
	s.touchIntegration(req.IntegrationID, models.IntegrationStatusActive)
	writeJSONResponse(w, http.StatusOK, models.Success())
}

func (s *Server) telegramSave(w http.ResponseWriter, r *http.Request, req models.TelegramActionRequest) {
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}
	if req.BotToken == "" || req.ChatID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("bot_token and chat_id are required"))
		return
	}

	// Verify the token before persisting it.
	bot, err := s.botFactory(req.BotToken)
	if err == nil {
		_, err = bot.GetMe(r.Context())
	}
	if err != nil {
		slog.Warn("Server.telegramSave: invalid bot token", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid bot token"))
		return
	}

	creds, err := json.Marshal(models.TelegramCredentials{BotToken: req.BotToken, ChatID: req.ChatID})
	if err != nil {
		slog.Error("Server.telegramSave: failed to marshal credentials", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save integration"))
		return
	}
	integ := &models.Integration{
		UserID:      req.UserID,
		Type:        models.IntegrationTypeTelegram,
		Name:        "Telegram Bot",
		Credentials: creds,
		Status:      models.IntegrationStatusActive,
	}
	if err := s.store.SaveIntegration(integ); err != nil {
		slog.Error("Server.telegramSave: failed to save integration", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save integration"))
		return
	}
	slog.Info("Server.telegramSave: integration saved", "integrationID", integ.ID, "userID", req.UserID)
	writeJSONResponse(w, http.StatusOK, models.APISuccess{Success: true, Integration: integ})
}

func (s *Server) touchIntegration(id string, status models.IntegrationStatus) {
	if id == "" {
		return
	}
	if err := s.store.TouchIntegration(id, status, time.Now().UTC()); err != nil {
		slog.Error("Server.touchIntegration: failed to update status", "integrationID", id, "error", err)
	}
}
