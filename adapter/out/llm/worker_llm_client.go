// Package llm implements sponsor extraction on top of an OpenAI-compatible
// chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sponsor_worker/pkg/httputil"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.1
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("empty response from language model")

type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	cb          *gobreaker.CircuitBreaker
	costs       *CostTracker
}

type ClientConfig struct {
	APIKey string
	// BaseURL targets an OpenAI-compatible endpoint; empty uses api.openai.com.
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds each HTTP request; zero means 120s.
	Timeout time.Duration
}

func NewClientWithConfig(cfg ClientConfig, log zerolog.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = httputil.NewClient(httputil.LLMClientConfig(cfg.Timeout))

	log = log.With().Str("component", "llm").Logger()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 연속 5회 실패 시 차단
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Client{
		client:      openai.NewClientWithConfig(apiCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		cb:          cb,
		costs:       NewCostTracker(),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Costs returns the client's running cost tracker.
func (c *Client) Costs() *CostTracker {
	return c.costs
}

// CompleteJSON asks for a JSON object response.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("llm circuit open: %w", err)
		}
		return "", err
	}

	resp := result.(openai.ChatCompletionResponse)
	c.costs.Track(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
