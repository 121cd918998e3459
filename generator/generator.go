// Package generator produces thin character frames by asking an LLM to
// compress a full card into a few identity-bearing sentences.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/emberune/taleweave/card"
	contexterrors "github.com/emberune/taleweave/internal/errors"
)

// Config holds the generator configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// NewConfigFromEnv builds a config from TALEWEAVE_AI_* variables.
func NewConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("TALEWEAVE_AI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("TALEWEAVE_AI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("TALEWEAVE_AI_MODEL"); v != "" {
		cfg.Model = v
	}
	return cfg
}

// chatClient is the slice of the openai client the service uses,
// extracted so tests can substitute a scripted implementation.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service generates thin frames through a chat-completion model.
type Service struct {
	client chatClient
	config *Config
	logger *slog.Logger
}

// NewService creates a frame generator, filling unset config values
// with defaults.
func NewService(cfg *Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Service{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger,
	}
}

const frameSystemPrompt = `You compress roleplay character cards into thin frames.
Reply with a single JSON object and nothing else:
{"name": "...", "essence": "...", "speech": "...", "motive": "..."}
essence: one or two sentences capturing who the character is.
speech: how they talk, a short phrase.
motive: what drives them, a short phrase.`

// Generate asks the model for a thin frame of the given card. The
// returned frame carries Source="generated"; validation and fallback
// are the caller's concern.
func (s *Service) Generate(ctx context.Context, c *card.MinimalCharacterCard) (*card.ThinFrame, error) {
	if c == nil || c.Data.Name == "" {
		return nil, contexterrors.InvalidArgument("cannot generate a frame without a card")
	}

	var content string
	err := s.doWithRetry(ctx, func() error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: frameSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildFramePrompt(c)},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, contexterrors.GenerationTimeout(err)
		}
		return nil, contexterrors.GenerationFailed("frame generation failed", err)
	}

	frame, err := parseFrameReply(content)
	if err != nil {
		return nil, contexterrors.GenerationFailed("frame reply was not parseable", err)
	}
	if frame.Name == "" {
		frame.Name = c.Data.Name
	}
	frame.GeneratedAt = time.Now()
	frame.Source = card.FrameSourceGenerated
	return frame, nil
}

// buildFramePrompt renders the card fields the model needs, skipping
// empty ones.
func buildFramePrompt(c *card.MinimalCharacterCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.Data.Name)
	if c.Data.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Data.Description)
	}
	if c.Data.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", c.Data.Personality)
	}
	if c.Data.Scenario != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", c.Data.Scenario)
	}
	return b.String()
}

// parseFrameReply extracts the JSON object from the model reply, which
// may be wrapped in a markdown code fence.
func parseFrameReply(content string) (*card.ThinFrame, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var frame card.ThinFrame
	if err := json.Unmarshal([]byte(content), &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// doWithRetry executes fn with exponential backoff.
func (s *Service) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < s.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				s.logger.Debug("frame generation failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}
