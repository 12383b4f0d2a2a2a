package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService records the last request and returns a canned completion.
type mockChatService struct {
	lastParams openai.ChatCompletionNewParams
	content    string
	err        error
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func TestGenerateWithMessages(t *testing.T) {
	mock := &mockChatService{content: "resposta"}
	client := &Client{chat: mock, model: DefaultModel}

	got, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("seja útil"),
		openai.UserMessage("oi"),
	})
	if err != nil {
		t.Fatalf("GenerateWithMessages failed: %v", err)
	}
	if got != "resposta" {
		t.Errorf("expected %q, got %q", "resposta", got)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected 2 messages sent, got %d", len(mock.lastParams.Messages))
	}
	if mock.lastParams.Model != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, mock.lastParams.Model)
	}
}

func TestGenerateJSONWithMessagesSetsResponseFormat(t *testing.T) {
	mock := &mockChatService{content: `{"intent":"support"}`}
	client := &Client{chat: mock, model: DefaultModel}

	got, err := client.GenerateJSONWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("classifique"),
	})
	if err != nil {
		t.Fatalf("GenerateJSONWithMessages failed: %v", err)
	}
	if got != `{"intent":"support"}` {
		t.Errorf("unexpected content: %q", got)
	}
	if mock.lastParams.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format to be set")
	}
}

func TestGenerateErrorPropagates(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	client := &Client{chat: mock, model: DefaultModel}

	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("oi"),
	})
	if err == nil {
		t.Fatal("expected error from chat service")
	}
}

func TestGenerateEmptyContent(t *testing.T) {
	mock := &mockChatService{content: ""}
	client := &Client{chat: mock, model: DefaultModel}

	got, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("oi"),
	})
	if err != nil {
		t.Fatalf("GenerateWithMessages failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty content, got %q", got)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key is missing")
	}
	client, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != "gpt-4o" {
		t.Errorf("expected configured model, got %q", client.model)
	}
}
