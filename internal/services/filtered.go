package services

import (
	"context"
	"io"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/textfilter"
)

// FilteredNarrator softens the language of another narrator's replies.
type FilteredNarrator struct {
	next   session.Narrator
	filter *textfilter.Filter
}

func NewFilteredNarrator(next session.Narrator, filter *textfilter.Filter) *FilteredNarrator {
	return &FilteredNarrator{next: next, filter: filter}
}

func (f *FilteredNarrator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reply, err := f.next.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	return f.filter.Apply(reply), nil
}

// Close closes the wrapped narrator when it holds resources.
func (f *FilteredNarrator) Close() error {
	if c, ok := f.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
