package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"
)

// Config holds the settings for the OpenAI-compatible generator client.
type Config struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible providers
	Model   string
	Timeout time.Duration
}

// openAIGenerator calls an OpenAI-compatible chat completion endpoint and
// expects a JSON plan document back.
type openAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIGenerator creates a PlanGenerator backed by an
// OpenAI-compatible API.
func NewOpenAIGenerator(cfg Config, logger *zap.Logger) PlanGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAIGenerator{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
}

const systemPrompt = `You are a running coach. Given an athlete profile and progression state, produce one week of training as JSON with this exact shape:
{"metadata":{"discipline":"running","goal":"...","levelHint":"...","daysPerWeek":3,"duration":"1 week","description":"..."},"plan_weeks":[{"week_num":1,"focus":"...","days":[{"day_name":"monday","date":"YYYY-MM-DD","workout":{"type":"easy","duration_minutes":30,"distance_km":5,"main_workout":"...","notes":"..."}}]}]}
Respond with JSON only.`

// GeneratePlan sends the request payload to the model and decodes the
// returned plan content. Any transport, API, or decode failure is
// returned to the caller, which synthesizes a fallback plan instead.
func (g *openAIGenerator) GeneratePlan(ctx context.Context, req *Request) (*Content, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	completion, err := g.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	var content Content
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &content); err != nil {
		return nil, fmt.Errorf("decode generated plan: %w", err)
	}
	if len(content.Weeks) == 0 {
		return nil, errors.New("generated plan has no weeks")
	}

	g.logger.Debug("generator returned plan content",
		zap.Int("weekNumber", req.WeekNumber),
		zap.Int("weeks", len(content.Weeks)))
	return &content, nil
}
