// Package classifier decides how the bot replies to an inbound message.
//
// Classification runs a fixed rule chain: escalation keywords, exact menu
// selections, a greeting heuristic, and finally a generative fallback. The
// order is a precedence policy; once a rule matches, later rules are not
// evaluated. The generative fallback never surfaces an error to the
// caller, it degrades to a canned apology instead.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go"

	"github.com/flowsync/flowsync/internal/genai"
	"github.com/flowsync/flowsync/internal/models"
)

// DefaultTimeout bounds the generative fallback call.
const DefaultTimeout = 10 * time.Second

// historyWindow is how many trailing history turns go to the model.
const historyWindow = 5

// greetingMaxLen is the message length ceiling for the greeting heuristic.
const greetingMaxLen = 30

// TransferMessage is sent when a conversation is escalated to a human.
const TransferMessage = "Entendi! 🙋 Vou transferir você para um atendente humano. Aguarde um momento, por favor."

// FailSoftMessage is sent when the generative fallback fails.
const FailSoftMessage = "Desculpe, estou com dificuldades para processar sua mensagem. Tente novamente ou digite 4 para falar com um atendente. 🙏"

// defaultAIResponse fills in when the model returns an empty response field.
const defaultAIResponse = "Desculpe, não entendi. Poderia reformular? Ou digite 4 para falar com um atendente."

var greetingWords = []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "hello", "hi", "hey"}

type menuOption struct {
	intent   models.Intent
	response string
}

var menuOptions = map[string]menuOption{
	"1": {
		intent:   models.IntentSupport,
		response: "Você escolheu Suporte. 🔧\n\nPor favor, descreva brevemente seu problema ou dúvida técnica que posso ajudar a resolver.",
	},
	"2": {
		intent:   models.IntentFinancial,
		response: "Você escolheu Financeiro. 💰\n\nPosso ajudar com:\n• Boletos e faturas\n• Pagamentos\n• Dúvidas sobre cobranças\n\nComo posso ajudar?",
	},
	"3": {
		intent:   models.IntentSales,
		response: "Você escolheu Comercial. 🛒\n\nEstou aqui para ajudar com:\n• Informações sobre produtos/serviços\n• Orçamentos\n• Novas contratações\n\nO que gostaria de saber?",
	},
	"4": {
		intent:   models.IntentHumanRequest,
		response: TransferMessage,
	},
}

const systemPromptTemplate = `Você é um assistente virtual de atendimento ao cliente.

CONTEXTO DO NEGÓCIO:
%s

REGRAS IMPORTANTES:
1. Seja educado, claro e objetivo
2. Use linguagem informal-profissional (adequada para WhatsApp)
3. Respostas curtas (máximo 3-4 linhas quando possível)
4. NUNCA invente informações sobre produtos, preços ou prazos
5. Se não souber algo, sugira falar com um atendente
6. Detecte frustração ou urgência - nesses casos, ofereça atendente humano
7. Não responda sobre assuntos fora do escopo do negócio

INTENÇÕES POSSÍVEIS:
- support: Problemas técnicos, bugs, dúvidas de uso
- financial: Boletos, pagamentos, cobranças
- sales: Vendas, produtos, orçamentos
- human_request: Usuário quer falar com humano
- unknown: Não conseguiu entender

Responda no formato JSON:
{
  "intent": "intenção_detectada",
  "confidence": 0.0 a 1.0,
  "requiresHuman": true/false,
  "response": "sua resposta ao cliente"
}`

// Opts holds optional classifier configuration.
type Opts struct {
	// Timeout bounds the generative fallback call.
	Timeout time.Duration
}

// Option configures classifier creation.
type Option func(*Opts)

// WithTimeout sets the generative fallback timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Classifier runs the reply decision chain.
type Classifier struct {
	gen     genai.ClientInterface
	timeout time.Duration
}

// New creates a classifier. The GenAI client may be nil, in which case the
// generative fallback degrades to the fail-soft response.
func New(gen genai.ClientInterface, opts ...Option) *Classifier {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Classifier{gen: gen, timeout: cfg.Timeout}
}

// Classify decides the bot's reply for message given the conversation
// history (oldest first) and the bot configuration. It never returns an
// error; generative failures produce the fail-soft result.
func (c *Classifier) Classify(ctx context.Context, message string, history []models.Message, cfg *models.BotConfig) models.ClassificationResult {
	lower := strings.ToLower(message)

	for _, keyword := range cfg.EscalationKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return models.ClassificationResult{
				Intent:        models.IntentHumanRequest,
				Confidence:    1.0,
				RequiresHuman: true,
				Response:      TransferMessage,
			}
		}
	}

	if sel, ok := menuOptions[strings.TrimSpace(message)]; ok {
		return models.ClassificationResult{
			Intent:        sel.intent,
			Confidence:    1.0,
			RequiresHuman: sel.intent == models.IntentHumanRequest,
			Response:      sel.response,
		}
	}

	if utf8.RuneCountInString(message) < greetingMaxLen {
		for _, g := range greetingWords {
			if strings.Contains(lower, g) {
				return models.ClassificationResult{
					Intent:        models.IntentGreeting,
					Confidence:    0.9,
					RequiresHuman: false,
					Response:      cfg.WelcomeMessage,
				}
			}
		}
	}

	return c.generativeClassify(ctx, message, history, cfg)
}

func failSoft() models.ClassificationResult {
	return models.ClassificationResult{
		Intent:        models.IntentUnknown,
		Confidence:    0.0,
		RequiresHuman: false,
		Response:      FailSoftMessage,
	}
}

func (c *Classifier) generativeClassify(ctx context.Context, message string, history []models.Message, cfg *models.BotConfig) models.ClassificationResult {
	if c.gen == nil {
		slog.Debug("Classifier has no GenAI client, failing soft")
		return failSoft()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(systemPromptTemplate, cfg.BusinessContext)),
	}
	turns := history
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	for _, turn := range turns {
		if turn.Sender == models.SenderUser {
			messages = append(messages, openai.UserMessage(turn.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(message))

	raw, err := c.gen.GenerateJSONWithMessages(ctx, messages)
	if err != nil {
		slog.Error("Classifier generative fallback failed", "error", err)
		return failSoft()
	}

	var result models.ClassificationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Error("Classifier received malformed JSON from model", "error", err)
		return failSoft()
	}
	if result.Intent == "" || !models.IsValidIntent(result.Intent) {
		result.Intent = models.IntentUnknown
	}
	if result.Confidence == 0 {
		result.Confidence = 0.5
	}
	if result.Response == "" {
		result.Response = defaultAIResponse
	}
	return result
}
