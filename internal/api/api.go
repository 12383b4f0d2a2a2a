package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flowsync/flowsync/internal/conversation"
	"github.com/flowsync/flowsync/internal/messaging"
	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
	"github.com/flowsync/flowsync/internal/telegram"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultVerifyToken is the webhook verification token used when none
	// is configured. Deployments should override it via WEBHOOK_VERIFY_TOKEN.
	DefaultVerifyToken = "flowsync_webhook_token"
)

// Server wires the HTTP handlers to the store, the conversation pipeline,
// and the optional outbound messaging channel.
type Server struct {
	addr        string
	verifyToken string
	store       store.Store
	controller  *conversation.Controller
	agents      *conversation.AgentService
	msgService  messaging.Service
	botFactory  telegram.Factory
	httpServer  *http.Server
}

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string
	// VerifyToken is the expected hub.verify_token for the Meta webhook
	// verification handshake.
	VerifyToken string
	// MsgService, when set, is used to deliver bot replies and agent
	// messages back to the customer's channel.
	MsgService messaging.Service
	// BotFactory builds Telegram clients for the integration endpoint.
	BotFactory telegram.Factory
}

// Option defines a functional option for server configuration.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithMessagingService sets the outbound messaging channel.
func WithMessagingService(svc messaging.Service) Option {
	return func(o *Opts) { o.MsgService = svc }
}

// WithTelegramFactory sets the Telegram client factory.
func WithTelegramFactory(f telegram.Factory) Option {
	return func(o *Opts) { o.BotFactory = f }
}

// NewServer creates an API server around the given store and conversation
// services.
func NewServer(st store.Store, ctrl *conversation.Controller, agents *conversation.AgentService, opts ...Option) *Server {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.VerifyToken == "" {
		o.VerifyToken = DefaultVerifyToken
	}
	if o.BotFactory == nil {
		o.BotFactory = func(token string) (telegram.BotClient, error) {
			return telegram.NewClient(token)
		}
	}
	return &Server{
		addr:        o.Addr,
		verifyToken: o.VerifyToken,
		store:       st,
		controller:  ctrl,
		agents:      agents,
		msgService:  o.MsgService,
		botFactory:  o.BotFactory,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/agent", s.agentHandler)
	mux.HandleFunc("/config", s.configHandler)
	mux.HandleFunc("/integrations/telegram", s.telegramHandler)
	mux.HandleFunc("/hooks", s.hooksHandler)
	mux.HandleFunc("/health", s.healthHandler)
	// Twilio delivers form-encoded callbacks, not JSON; route them to the
	// service's own parser when Twilio is the active channel.
	if ts, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("/twilio/webhook", ts.TwilioWebhookHandler)
	}
	return mux
}

// Run starts the HTTP server and blocks until it is shut down.
func (s *Server) Run() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	slog.Info("Server listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	convs, err := s.store.ListOpenConversations()
	if err != nil {
		slog.Error("Server.healthHandler: store check failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Store unavailable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.APISuccess{
		Success: true,
		Message: "ok",
		Result:  map[string]int{"open_conversations": len(convs)},
	})
}
