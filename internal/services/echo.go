package services

import (
	"context"
	"strings"
)

// EchoNarrator answers without a model. It lets the game run offline and
// gives tests a deterministic reply.
type EchoNarrator struct{}

func NewEchoNarrator() *EchoNarrator {
	return &EchoNarrator{}
}

func (EchoNarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	input := userPrompt
	if i := strings.LastIndex(userPrompt, "Player: "); i >= 0 {
		input = userPrompt[i+len("Player: "):]
	}
	return "The void echoes back: " + strings.TrimSpace(input), nil
}
