package messaging

import (
	"context"
	"log/slog"

	"github.com/flowsync/flowsync/internal/conversation"
	"github.com/flowsync/flowsync/internal/models"
)

// Dispatcher consumes inbound messages from a messaging service, runs them
// through the conversation controller, and sends the bot's reply back over
// the same channel. It is the glue between a live provider connection and
// the message pipeline.
type Dispatcher struct {
	service    Service
	controller *conversation.Controller
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(service Service, controller *conversation.Controller) *Dispatcher {
	return &Dispatcher{service: service, controller: controller}
}

// Run processes inbound messages until the context is cancelled or the
// service's response channel closes. Delivery receipts are drained here
// too; an unread receipts channel would eventually stall the provider's
// event callback.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping, context cancelled")
			return
		case req, ok := <-d.service.Responses():
			if !ok {
				slog.Info("Dispatcher stopping, response channel closed")
				return
			}
			d.handle(ctx, req)
		case receipt, ok := <-d.service.Receipts():
			if !ok {
				slog.Info("Dispatcher stopping, receipt channel closed")
				return
			}
			slog.Debug("Dispatcher observed delivery receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}

// handle runs one inbound message through the pipeline. Failures are
// logged, not fatal; the next message still gets processed.
func (d *Dispatcher) handle(ctx context.Context, req models.InboundRequest) {
	canonical, err := d.service.ValidateAndCanonicalizeRecipient(req.PhoneNumber)
	if err != nil {
		slog.Warn("Dispatcher dropping message with invalid sender", "error", err, "from", req.PhoneNumber)
		return
	}
	req.PhoneNumber = canonical

	result, err := d.controller.ProcessInbound(ctx, req)
	if err != nil {
		slog.Error("Dispatcher failed to process inbound message", "error", err, "from", req.PhoneNumber)
		return
	}
	if result.Status != models.ProcessStatusAnswered || result.Response == "" {
		slog.Debug("Dispatcher has no reply to send", "from", req.PhoneNumber, "status", result.Status)
		return
	}

	if err := d.service.SendMessage(ctx, req.PhoneNumber, result.Response); err != nil {
		slog.Error("Dispatcher failed to send reply", "error", err, "to", req.PhoneNumber)
	}
}
