package services

import (
	"context"
	"io"
	"time"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

// TimeoutNarrator bounds every call to another narrator.
type TimeoutNarrator struct {
	next    session.Narrator
	timeout time.Duration
}

func NewTimeoutNarrator(next session.Narrator, timeout time.Duration) *TimeoutNarrator {
	return &TimeoutNarrator{next: next, timeout: timeout}
}

func (t *TimeoutNarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, systemPrompt, userPrompt)
}

func (t *TimeoutNarrator) Close() error {
	if c, ok := t.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
