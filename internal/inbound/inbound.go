// Package inbound normalizes provider webhook payloads into a common
// inbound message shape.
//
// Providers are distinguished by which fields their payloads carry, not by
// an explicit identifier. Matchers run in a fixed priority order and the
// first match wins. Payloads that match no shape are not an error; the
// webhook handler acknowledges them and moves on, since providers send
// health checks and delivery receipts through the same endpoint.
package inbound

import (
	"encoding/json"
	"strings"

	"github.com/flowsync/flowsync/internal/models"
)

// Provider identifies which payload shape matched.
type Provider string

const (
	ProviderMeta    Provider = "meta"
	ProviderZAPI    Provider = "zapi"
	ProviderTwilio  Provider = "twilio"
	ProviderGeneric Provider = "generic"
)

// Result is a normalized inbound payload. A matched payload can carry zero
// messages, for example a Meta status-update batch.
type Result struct {
	Provider Provider
	Messages []models.InboundRequest
}

// Parse inspects a raw webhook body and extracts inbound messages. The
// second return value reports whether any provider shape matched.
func Parse(raw []byte) (*Result, bool) {
	if msgs, ok := matchMeta(raw); ok {
		return &Result{Provider: ProviderMeta, Messages: msgs}, true
	}
	if msgs, ok := matchZAPI(raw); ok {
		return &Result{Provider: ProviderZAPI, Messages: msgs}, true
	}
	if msgs, ok := matchTwilio(raw); ok {
		return &Result{Provider: ProviderTwilio, Messages: msgs}, true
	}
	if msgs, ok := matchGeneric(raw); ok {
		return &Result{Provider: ProviderGeneric, Messages: msgs}, true
	}
	return nil, false
}

type metaPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Button struct {
						Text string `json:"text"`
					} `json:"button"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// matchMeta handles the WhatsApp Business Cloud API payload. Only changes
// with field "messages" carry customer messages; other change types
// (statuses, template updates) match the shape but yield nothing.
func matchMeta(raw []byte) ([]models.InboundRequest, bool) {
	var p metaPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	if p.Object != "whatsapp_business_account" || len(p.Entry) == 0 {
		return nil, false
	}
	var msgs []models.InboundRequest
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			name := ""
			if len(change.Value.Contacts) > 0 {
				name = change.Value.Contacts[0].Profile.Name
			}
			for _, m := range change.Value.Messages {
				// Interactive button replies carry their text under
				// button, not text.
				body := m.Text.Body
				if body == "" {
					body = m.Button.Text
				}
				if m.From == "" || body == "" {
					continue
				}
				msgs = append(msgs, models.InboundRequest{
					PhoneNumber:  m.From,
					Message:      body,
					CustomerName: name,
				})
			}
		}
	}
	return msgs, true
}

type zapiPayload struct {
	Phone      string `json:"phone"`
	ChatID     string `json:"chatId"`
	SenderName string `json:"senderName"`
	Pushname   string `json:"pushname"`
	Body       string `json:"body"`
	Text       struct {
		Message string `json:"message"`
	} `json:"text"`
}

// matchZAPI handles the Z-API payload. The chat ID carries an "@c.us"
// suffix that is not part of the phone number.
func matchZAPI(raw []byte) ([]models.InboundRequest, bool) {
	var p zapiPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	phone := p.Phone
	if phone == "" {
		phone = strings.TrimSuffix(p.ChatID, "@c.us")
	}
	if phone == "" {
		return nil, false
	}
	text := p.Text.Message
	if text == "" {
		text = p.Body
	}
	if text == "" {
		return nil, false
	}
	name := p.SenderName
	if name == "" {
		name = p.Pushname
	}
	return []models.InboundRequest{{PhoneNumber: phone, Message: text, CustomerName: name}}, true
}

type twilioPayload struct {
	From        string `json:"From"`
	Body        string `json:"Body"`
	ProfileName string `json:"ProfileName"`
}

// matchTwilio handles the Twilio WhatsApp payload. The sender address is
// prefixed with "whatsapp:".
func matchTwilio(raw []byte) ([]models.InboundRequest, bool) {
	var p twilioPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	if p.From == "" || p.Body == "" {
		return nil, false
	}
	phone := strings.TrimPrefix(p.From, "whatsapp:")
	return []models.InboundRequest{{PhoneNumber: phone, Message: p.Body, CustomerName: p.ProfileName}}, true
}

type genericPayload struct {
	PhoneNumber  string `json:"phone_number"`
	Message      string `json:"message"`
	CustomerName string `json:"customer_name"`
}

// matchGeneric handles the flat test shape used by internal tooling.
func matchGeneric(raw []byte) ([]models.InboundRequest, bool) {
	var p genericPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	if p.PhoneNumber == "" || p.Message == "" {
		return nil, false
	}
	return []models.InboundRequest{{PhoneNumber: p.PhoneNumber, Message: p.Message, CustomerName: p.CustomerName}}, true
}
