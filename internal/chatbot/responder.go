package chatbot

import (
	"context"
	"strings"

	"dugtong/internal/domain"

	"go.uber.org/zap"
)

const FallbackText = "Sorry, I can't answer that right now. Please contact your health officer or try again later."

// Source where a reply came from.
type Source string

const (
	SourceRules    Source = "rules"
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Reply bot answer plus provenance.
type Reply struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
	Intent string `json:"intent,omitempty"`
}

// Generator free-form text model.
type Generator interface {
	Generate(ctx context.Context, history []domain.ChatbotMessage, prompt string) (string, error)
}

type Responder struct {
	rules  *RuleEngine
	llm    Generator
	logger *zap.Logger
}

// NewResponder llm may be nil.
func NewResponder(rules *RuleEngine, llm Generator, logger *zap.Logger) *Responder {
	return &Responder{rules: rules, llm: llm, logger: logger}
}

// Reply tries the rules, then the model, then FallbackText. It never fails.
func (r *Responder) Reply(ctx context.Context, history []domain.ChatbotMessage, text string) Reply {
	if strings.TrimSpace(text) == "" {
		return Reply{Text: FallbackText, Source: SourceFallback}
	}
	if r.rules != nil {
		if m, ok := r.rules.Match(text); ok {
			return Reply{Text: m.Answer, Source: SourceRules, Intent: m.Intent}
		}
	}
	if r.llm != nil {
		out, err := r.llm.Generate(ctx, history, text)
		if err == nil && strings.TrimSpace(out) != "" {
			return Reply{Text: strings.TrimSpace(out), Source: SourceLLM}
		}
		if err != nil {
			r.logger.Warn("llm reply failed, using fallback", zap.Error(err))
		}
	}
	return Reply{Text: FallbackText, Source: SourceFallback}
}

// NewDefaultResponder uses DefaultIntents, and the model only when cfg has keys and models.
func NewDefaultResponder(cfg LLMConfig, logger *zap.Logger) (*Responder, error) {
	rules, err := NewRuleEngine(DefaultIntents())
	if err != nil {
		return nil, err
	}
	var llm Generator
	if client := NewLLMClient(cfg, logger); client.Enabled() {
		llm = client
	}
	return NewResponder(rules, llm, logger), nil
}
