package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
)

const defaultCompletionsBaseURL = "https://api.openai.com/v1"

// CompletionsNarrator talks to any chat-completions compatible endpoint over
// plain HTTP.
type CompletionsNarrator struct {
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

// CompletionsRequest is the request body for POST {base}/chat/completions.
type CompletionsRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream"`
}

// CompletionsResponse is the subset of the response the narrator reads.
type CompletionsResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewCompletionsNarrator(apiKey, baseURL, modelName string, timeout time.Duration, logger *slog.Logger) *CompletionsNarrator {
	if baseURL == "" {
		baseURL = defaultCompletionsBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CompletionsNarrator{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Complete sends the persona as the system message and the turn prompt as
// the user message, returning the first choice's content.
func (c *CompletionsNarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	request := CompletionsRequest{
		Model: c.modelName,
		Messages: []chat.ChatMessage{
			{Role: chat.ChatRoleSystem, Content: systemPrompt},
			{Role: chat.ChatRoleUser, Content: userPrompt},
		},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NarratorError{Provider: "completions", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NarratorError{Provider: "completions", StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &NarratorError{Provider: "completions", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var completion CompletionsResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &NarratorError{Provider: "completions", StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if completion.Error != nil {
		return "", &NarratorError{Provider: "completions", StatusCode: resp.StatusCode, Err: fmt.Errorf("API error: %s", completion.Error.Message)}
	}
	if len(completion.Choices) == 0 {
		return "", &NarratorError{Provider: "completions", StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("no choices returned")}
	}

	c.logger.Debug("Narrator reply received",
		"model", completion.Model,
		"total_tokens", completion.Usage.TotalTokens,
		"elapsed", time.Since(start))

	return completion.Choices[0].Message.Content, nil
}
