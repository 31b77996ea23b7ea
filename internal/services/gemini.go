package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiNarrator narrates with Google's Gemini models.
type GeminiNarrator struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

func NewGeminiNarrator(ctx context.Context, apiKey, modelName string, logger *slog.Logger, opts ...option.ClientOption) (*GeminiNarrator, error) {
	if modelName == "" || strings.HasPrefix(modelName, "gpt-") {
		modelName = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiNarrator{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (g *GeminiNarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// A model value carries its system instruction, so each call gets its own.
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(DefaultTemperature)
	model.SetMaxOutputTokens(DefaultMaxTokens)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", &NarratorError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", &NarratorError{Provider: "gemini", Err: err}
	}

	text, err := geminiText(resp)
	if err != nil {
		return "", &NarratorError{Provider: "gemini", StatusCode: 200, Err: err}
	}
	if resp.UsageMetadata != nil {
		g.logger.Debug("Narrator reply received",
			"model", g.modelName,
			"total_tokens", resp.UsageMetadata.TotalTokenCount)
	}
	return text, nil
}

// Close releases the underlying client.
func (g *GeminiNarrator) Close() error {
	return g.client.Close()
}

// geminiText joins the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("candidate has no content (finish reason %s)", cand.FinishReason)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}
