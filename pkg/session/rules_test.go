package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

func TestHistoryLengthRule(t *testing.T) {
	rule := HistoryLengthRule{Interval: 6}

	rec := &Record{Level: 1, History: make([]string, 5)}
	out := rule.Apply(rec, "")
	assert.False(t, out.LeveledUp)
	assert.Len(t, rec.History, 5)

	rec = &Record{Level: 1, History: make([]string, 12)}
	out = rule.Apply(rec, "")
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 2, rec.Level)
	assert.Len(t, rec.History, 13)

	// zero interval falls back to the default
	rec = &Record{Level: 1, History: make([]string, 6)}
	assert.True(t, HistoryLengthRule{}.Apply(rec, "").LeveledUp)
}

func TestKeywordRule(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		items   []string
		leveled bool
	}{
		{name: "nothing", reply: "The corridor is dark."},
		{name: "item", reply: "You received a plasma cutter.", items: []string{"plasma cutter"}},
		{name: "two items", reply: "You found the keycard, then you picked up some rations!", items: []string{"keycard", "rations"}},
		{name: "level phrase", reply: "Well done, you LEVEL UP as the lights return.", leveled: true},
		{name: "leveled-up phrase", reply: "You leveled-up.", leveled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{Level: 1, Inventory: []string{}, History: []string{"x"}}
			out := KeywordRule{}.Apply(rec, tt.reply)
			assert.Equal(t, tt.leveled, out.LeveledUp)
			if tt.items == nil {
				assert.Empty(t, out.Items)
				assert.Empty(t, rec.Inventory)
			} else {
				assert.Equal(t, tt.items, out.Items)
				assert.Equal(t, tt.items, rec.Inventory)
			}
			if tt.leveled {
				assert.Equal(t, 2, rec.Level)
				assert.Equal(t, LevelUpLine(2), rec.History[len(rec.History)-1])
			}
		})
	}
}

func TestKeywordRule_NotInstalledByDefault(t *testing.T) {
	st := story.Default()
	e := NewEngine(st, &stubNarrator{replies: []string{"You received a medkit. You level up!"}})
	next, turn := e.ExecuteTurn(context.Background(), NewRecord("u", st), "search")
	assert.Equal(t, 1, next.Level)
	assert.Empty(t, next.Inventory)
	assert.False(t, turn.LeveledUp)

	e = NewEngine(st, &stubNarrator{replies: []string{"You received a medkit. You level up!"}}, WithRules(KeywordRule{}))
	next, turn = e.ExecuteTurn(context.Background(), NewRecord("u", st), "search")
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, []string{"medkit"}, next.Inventory)
	assert.True(t, turn.LeveledUp)
	assert.Equal(t, []string{"medkit"}, turn.Items)
}
