// Package ai generates reply, message and comment text and classifies comment intent.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// Generator produces text from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrAIDisabled is returned by every Writer call when no generator is configured
var ErrAIDisabled = errors.New("text generation disabled")

// ErrEmptyGeneration means the model answered with no usable text
var ErrEmptyGeneration = errors.New("model returned no text")

// GeminiClient generates text with Gemini, trying each model in order while
// the previous one is throttled or unavailable
type GeminiClient struct {
	client      *genai.Client
	models      []string
	temperature float32
}

// Ensure GeminiClient implements Generator
var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient connects to the Gemini API
func NewGeminiClient(ctx context.Context, apiKey string, models ...string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if len(models) == 0 {
		models = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, models: models, temperature: 0.7}, nil
}

// Generate returns the first candidate's text
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](g.temperature),
	}

	var lastErr error
	for _, model := range g.models {
		result, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
		if err != nil {
			if isFallthrough(err) {
				logrus.WithError(err).WithField("model", model).Warn("Model unavailable, trying next")
				lastErr = err
				continue
			}
			return "", fmt.Errorf("gemini %s: %w", model, err)
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var parts []string
			for _, part := range result.Candidates[0].Content.Parts {
				if part != nil && part.Text != "" {
					parts = append(parts, part.Text)
				}
			}
			if text := strings.TrimSpace(strings.Join(parts, "")); text != "" {
				return text, nil
			}
		}
		lastErr = ErrEmptyGeneration
	}

	return "", fmt.Errorf("all models failed: %w", lastErr)
}

func isFallthrough(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "exhausted", "404", "not found", "503", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
