package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAINarrator uses the go-openai client. BaseURL lets it reach any
// OpenAI-compatible gateway such as OpenRouter.
type OpenAINarrator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAINarrator(apiKey, baseURL, model string, logger *slog.Logger) *OpenAINarrator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAINarrator{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

func (o *OpenAINarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &NarratorError{Provider: "openai", StatusCode: 200, Err: fmt.Errorf("no choices returned")}
	}

	o.logger.Debug("Narrator reply received",
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens)

	return resp.Choices[0].Message.Content, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &NarratorError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &NarratorError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Err: reqErr.Err}
	}
	return &NarratorError{Provider: "openai", Err: err}
}
