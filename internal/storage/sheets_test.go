package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

// fakeSheet serves the three values endpoints the store uses.
type fakeSheet struct {
	mu      sync.Mutex
	rows    [][]interface{}
	fail    bool
	appends int
	updates int
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{}
}

var rowRangeRe = regexp.MustCompile(`!A(\d+):D\d+$`)

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
		return
	}

	const prefix = "/v4/spreadsheets/sheet-id/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)

	var body struct {
		Values [][]interface{} `json:"values"`
	}
	if r.Method != http.MethodGet {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          rng,
			"majorDimension": "ROWS",
			"values":         f.rows,
		})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		f.appends++
		f.rows = append(f.rows, body.Values...)
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))
	case r.Method == http.MethodPut:
		m := rowRangeRe.FindStringSubmatch(rng)
		if m == nil {
			http.Error(w, "bad range "+rng, http.StatusBadRequest)
			return
		}
		row, _ := strconv.Atoi(m[1])
		for len(f.rows) < row {
			f.rows = append(f.rows, []interface{}{})
		}
		f.updates++
		f.rows[row-1] = body.Values[0]
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))
	default:
		http.Error(w, "unexpected "+r.Method, http.StatusMethodNotAllowed)
	}
}

func newSheets(t *testing.T, fake *fakeSheet) *SheetsStorage {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s, err := NewSheetsStorage(context.Background(), "sheet-id", "Sheet1", logger.Discard(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return s
}

func TestSheetsStorage_WritesHeaderOnFirstRow(t *testing.T) {
	fake := newFakeSheet()
	s := newSheets(t, fake)

	_, created, err := s.Seed(context.Background(), "Spectre-41", seedFields())
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, fake.rows, 2)
	assert.Equal(t, []interface{}{"username", "level", "inventory", "history"}, fake.rows[0])
	assert.Equal(t, "Spectre-41", fake.rows[1][0])
	assert.Equal(t, "1", fake.rows[1][1])
}

func TestSheetsStorage_UpdatesInPlace(t *testing.T) {
	fake := newFakeSheet()
	fake.rows = [][]interface{}{
		{"username", "level", "inventory", "history"},
		{"alice", "1", "[]", `["hi"]`},
		{"bob", "2", "[]", `["yo"]`},
	}
	s := newSheets(t, fake)

	require.NoError(t, s.Save(context.Background(), "bob", session.Fields{Level: "3", Inventory: `["Map"]`, History: `["yo","ok"]`}))
	assert.Equal(t, 1, fake.updates)
	assert.Equal(t, 0, fake.appends)
	assert.Equal(t, []interface{}{"bob", "3", `["Map"]`, `["yo","ok"]`}, fake.rows[2])
	assert.Equal(t, "alice", fake.rows[1][0])
}

func TestSheetsStorage_ReadsSparseAndNumericCells(t *testing.T) {
	fake := newFakeSheet()
	fake.rows = [][]interface{}{
		{"username", "level", "inventory", "history"},
		{"legacy", 2},
	}
	s := newSheets(t, fake)

	got, err := s.Load(context.Background(), "legacy")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.Fields{Level: "2"}, *got)
}

func TestSheetsStorage_ExactUsernameMatch(t *testing.T) {
	fake := newFakeSheet()
	fake.rows = [][]interface{}{
		{"username", "level", "inventory", "history"},
		{"Alice", "4", "[]", "[]"},
	}
	s := newSheets(t, fake)

	got, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The header row is never treated as a user.
	got, err = s.Load(context.Background(), "username")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSheetsStorage_BackendDown(t *testing.T) {
	fake := newFakeSheet()
	fake.fail = true
	s := newSheets(t, fake)

	ctx := context.Background()
	assert.Error(t, s.Ping(ctx))
	_, err := s.Load(ctx, "alice")
	assert.Error(t, err)
	_, _, err = s.Seed(ctx, "alice", seedFields())
	assert.Error(t, err)
	assert.Error(t, s.Save(ctx, "alice", seedFields()))
}

func TestSheetsCredentials(t *testing.T) {
	_, err := SheetsCredentials(context.Background(), "", "not json")
	assert.Error(t, err)

	_, err = SheetsCredentials(context.Background(), "/does/not/exist.json", "")
	assert.Error(t, err)
}

func TestSheetsStorage_HistoryOverCellLimit(t *testing.T) {
	fake := newFakeSheet()
	fake.rows = [][]interface{}{
		{"username", "level", "inventory", "history"},
		{"alice", "1", "[]", `["hi"]`},
	}
	s := newSheets(t, fake)
	ctx := context.Background()

	big := session.Fields{Level: "1", Inventory: "[]", History: `["` + strings.Repeat("é", MaxCellChars) + `"]`}
	err := s.Save(ctx, "alice", big)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCellTooLarge))
	assert.Contains(t, err.Error(), "history")
	assert.Equal(t, 0, fake.updates)
	assert.Equal(t, `["hi"]`, fake.rows[1][3])

	err = s.Save(ctx, "bob", big)
	assert.True(t, errors.Is(err, ErrCellTooLarge))
	assert.Equal(t, 0, fake.appends)

	// Multi-byte text is counted in characters, not bytes.
	fits := session.Fields{Level: "1", Inventory: "[]", History: strings.Repeat("é", MaxCellChars)}
	require.NoError(t, s.Save(ctx, "alice", fits))
	assert.Equal(t, 1, fake.updates)
}
