package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dugtong/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const DefaultLLMBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrMalformedResponse the model answered without usable text.
var ErrMalformedResponse = errors.New("chatbot: malformed model response")

// generateRequest request body of models/{model}:generateContent.
type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// LLMConfig keys and models are tried keys-first in the order given.
type LLMConfig struct {
	BaseURL      string
	APIKeys      []string
	Models       []string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	Policy       AttemptPolicy
}

// LLMClient generateContent client with bounded key/model fallback.
type LLMClient struct {
	client     *resty.Client
	cfg        LLMConfig
	candidates []Candidate
	logger     *zap.Logger
}

func NewLLMClient(cfg LLMConfig, logger *zap.Logger) *LLMClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLLMBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Policy.MaxAttempts == 0 && cfg.Policy.MaxElapsed == 0 {
		cfg.Policy = DefaultAttemptPolicy()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &LLMClient{
		client:     client,
		cfg:        cfg,
		candidates: Candidates(cfg.APIKeys, cfg.Models),
		logger:     logger,
	}
}

// Enabled reports whether at least one key/model pair is configured.
func (c *LLMClient) Enabled() bool {
	return c != nil && len(c.candidates) > 0
}

// Generate answers prompt given the prior turns of the conversation.
func (c *LLMClient) Generate(ctx context.Context, history []domain.ChatbotMessage, prompt string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("%w: no llm credentials", ErrAttemptsExhausted)
	}
	body := c.buildRequest(history, prompt)
	return c.cfg.Policy.Run(ctx, c.candidates, func(ctx context.Context, cand Candidate) (string, error) {
		text, err := c.call(ctx, cand, body)
		if err != nil {
			c.logger.Warn("llm attempt failed", zap.String("model", cand.Model), zap.Error(err))
		}
		return text, err
	})
}

func (c *LLMClient) buildRequest(history []domain.ChatbotMessage, prompt string) generateRequest {
	req := generateRequest{
		GenerationConfig: &generationConfig{
			Temperature:     c.cfg.Temperature,
			MaxOutputTokens: c.cfg.MaxTokens,
		},
	}
	if c.cfg.SystemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: c.cfg.SystemPrompt}}}
	}
	for _, m := range history {
		role := "user"
		switch m.Role {
		case domain.ChatRoleBot:
			role = "model"
		case domain.ChatRoleSystem:
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	req.Contents = append(req.Contents, content{Role: "user", Parts: []part{{Text: prompt}}})
	return req
}

func (c *LLMClient) call(ctx context.Context, cand Candidate, body generateRequest) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", cand.Key).
		SetBody(body).
		Post(fmt.Sprintf("/models/%s:generateContent", cand.Model))
	if err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		if resp.IsError() {
			return "", fmt.Errorf("llm status %d", resp.StatusCode())
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm error %d %s: %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm status %d", resp.StatusCode())
	}

	var b strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrMalformedResponse
	}
	return text, nil
}
