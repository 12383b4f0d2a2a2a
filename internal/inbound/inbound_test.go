package inbound

import (
	"testing"
)

func TestParseMetaPayload(t *testing.T) {
	raw := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"contacts": [{"profile": {"name": "Maria"}}],
					"messages": [{"from": "5511999990000", "text": {"body": "oi"}}]
				}
			}]
		}]
	}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Meta payload to match")
	}
	if res.Provider != ProviderMeta {
		t.Errorf("expected provider meta, got %s", res.Provider)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(res.Messages))
	}
	msg := res.Messages[0]
	if msg.PhoneNumber != "5511999990000" || msg.Message != "oi" || msg.CustomerName != "Maria" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestParseMetaStatusUpdateYieldsNoMessages(t *testing.T) {
	raw := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "statuses",
				"value": {}
			}]
		}]
	}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Meta status payload to match the Meta shape")
	}
	if len(res.Messages) != 0 {
		t.Errorf("expected no messages from a status update, got %d", len(res.Messages))
	}
}

func TestParseMetaButtonReply(t *testing.T) {
	raw := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"messages": [{"from": "5511999990000", "button": {"text": "1"}}]
				}
			}]
		}]
	}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Meta payload to match")
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message from button reply, got %d", len(res.Messages))
	}
	if res.Messages[0].Message != "1" {
		t.Errorf("expected button text as message body, got %q", res.Messages[0].Message)
	}
}

func TestParseMetaRequiresBusinessAccountObject(t *testing.T) {
	raw := []byte(`{"object": "page", "entry": [{"changes": []}]}`)
	if _, ok := Parse(raw); ok {
		t.Error("expected non-WhatsApp object with entry array to match no shape")
	}
}

func TestParseMetaMultipleMessages(t *testing.T) {
	raw := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"messages": [
						{"from": "5511999990000", "text": {"body": "primeira"}},
						{"from": "5511999990000", "text": {"body": "segunda"}}
					]
				}
			}]
		}]
	}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Meta payload to match")
	}
	if len(res.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(res.Messages))
	}
	if res.Messages[1].Message != "segunda" {
		t.Errorf("unexpected second message: %+v", res.Messages[1])
	}
}

func TestParseZAPIPayload(t *testing.T) {
	raw := []byte(`{"phone": "5511999990000", "senderName": "Joao", "text": {"message": "preciso de ajuda"}}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Z-API payload to match")
	}
	if res.Provider != ProviderZAPI {
		t.Errorf("expected provider zapi, got %s", res.Provider)
	}
	msg := res.Messages[0]
	if msg.PhoneNumber != "5511999990000" || msg.Message != "preciso de ajuda" || msg.CustomerName != "Joao" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestParseZAPIChatIDStripsSuffix(t *testing.T) {
	raw := []byte(`{"chatId": "5511999990000@c.us", "pushname": "Joao", "body": "oi"}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Z-API payload to match")
	}
	msg := res.Messages[0]
	if msg.PhoneNumber != "5511999990000" {
		t.Errorf("expected @c.us suffix stripped, got %q", msg.PhoneNumber)
	}
	if msg.Message != "oi" {
		t.Errorf("expected body fallback text, got %q", msg.Message)
	}
	if msg.CustomerName != "Joao" {
		t.Errorf("expected pushname fallback, got %q", msg.CustomerName)
	}
}

func TestParseTwilioPayload(t *testing.T) {
	raw := []byte(`{"From": "whatsapp:+5511999990000", "Body": "quanto custa?", "ProfileName": "Ana"}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected Twilio payload to match")
	}
	if res.Provider != ProviderTwilio {
		t.Errorf("expected provider twilio, got %s", res.Provider)
	}
	msg := res.Messages[0]
	if msg.PhoneNumber != "+5511999990000" {
		t.Errorf("expected whatsapp: prefix stripped, got %q", msg.PhoneNumber)
	}
	if msg.Message != "quanto custa?" || msg.CustomerName != "Ana" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestParseGenericPayload(t *testing.T) {
	raw := []byte(`{"phone_number": "+5511999990000", "message": "teste", "customer_name": "Carlos"}`)
	res, ok := Parse(raw)
	if !ok {
		t.Fatal("expected generic payload to match")
	}
	if res.Provider != ProviderGeneric {
		t.Errorf("expected provider generic, got %s", res.Provider)
	}
	msg := res.Messages[0]
	if msg.PhoneNumber != "+5511999990000" || msg.Message != "teste" || msg.CustomerName != "Carlos" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestParseMetaAndGenericNormalizeIdentically(t *testing.T) {
	meta := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"field": "messages",
				"value": {
					"contacts": [{"profile": {"name": "Maria"}}],
					"messages": [{"from": "5511999990000", "text": {"body": "oi, tudo bem?"}}]
				}
			}]
		}]
	}`)
	generic := []byte(`{"phone_number": "5511999990000", "message": "oi, tudo bem?", "customer_name": "Maria"}`)

	metaRes, ok := Parse(meta)
	if !ok {
		t.Fatal("expected Meta payload to match")
	}
	genericRes, ok := Parse(generic)
	if !ok {
		t.Fatal("expected generic payload to match")
	}
	if len(metaRes.Messages) != 1 || len(genericRes.Messages) != 1 {
		t.Fatal("expected exactly one message from each payload")
	}
	if metaRes.Messages[0] != genericRes.Messages[0] {
		t.Errorf("normalization mismatch: meta=%+v generic=%+v", metaRes.Messages[0], genericRes.Messages[0])
	}
}

func TestParseUnmatchedPayload(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"health check", `{"ping": "pong"}`},
		{"empty object", `{}`},
		{"missing message", `{"phone_number": "+5511999990000"}`},
		{"invalid json", `not json at all`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if res, ok := Parse([]byte(tc.raw)); ok {
				t.Errorf("expected no match, got %+v", res)
			}
		})
	}
}
