package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowsync/flowsync/internal/models"
)

// configHandler reads and updates the operator bot configuration.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getConfig(w)
	case http.MethodPut:
		s.updateConfig(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) getConfig(w http.ResponseWriter) {
	cfg, err := s.store.GetBotConfig()
	if err != nil {
		slog.Error("Server.getConfig: failed to load config", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load configuration"))
		return
	}
	if cfg == nil {
		defaults := models.DefaultBotConfig()
		cfg = &defaults
	}
	writeJSONResponse(w, http.StatusOK, cfg)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var update models.BotConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Server.updateConfig: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	cfg, err := s.store.GetBotConfig()
	if err != nil {
		slog.Error("Server.updateConfig: failed to load config", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load configuration"))
		return
	}
	if cfg == nil {
		defaults := models.DefaultBotConfig()
		cfg = &defaults
	}

	if update.IsBotActive != nil {
		cfg.IsBotActive = *update.IsBotActive
	}
	if update.WelcomeMessage != nil {
		cfg.WelcomeMessage = *update.WelcomeMessage
	}
	if update.BusinessContext != nil {
		cfg.BusinessContext = *update.BusinessContext
	}
	if update.EscalationKeywords != nil {
		cfg.EscalationKeywords = *update.EscalationKeywords
	}
	cfg.UpdatedAt = time.Now()

	if err := s.store.SaveBotConfig(cfg); err != nil {
		slog.Error("Server.updateConfig: failed to save config", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save configuration"))
		return
	}
	slog.Info("Server.updateConfig: configuration updated", "botActive", cfg.IsBotActive)
	writeJSONResponse(w, http.StatusOK, cfg)
}
