package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
)

// MaxCellChars is the most characters Google Sheets keeps in one cell.
const MaxCellChars = 50000

// ErrCellTooLarge is returned when a session field would not fit in a cell.
// Long histories hit it first.
var ErrCellTooLarge = errors.New("session field exceeds sheet cell limit")

// Column order of the sheet. Row 1 is a header.
var sheetHeader = []interface{}{"username", "level", "inventory", "history"}

// SheetsStorage keeps one row per user in a Google Sheets worksheet:
// columns A-D hold username, level, inventory, history.
type SheetsStorage struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger

	// mu keeps a find-then-append in this process from racing another.
	mu sync.Mutex
}

// Ensure SheetsStorage implements Storage interface
var _ storage.Storage = (*SheetsStorage)(nil)

// SheetsCredentials turns a service account key, given inline or as a file
// path, into a client option.
func SheetsCredentials(ctx context.Context, credentialsFile, credentialsJSON string) (option.ClientOption, error) {
	data := []byte(credentialsJSON)
	if len(data) == 0 {
		var err error
		data, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
		}
	}

	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheets credentials: %w", err)
	}
	return option.WithCredentials(creds), nil
}

// NewSheetsStorage creates a sheet-backed session store
func NewSheetsStorage(ctx context.Context, spreadsheetID, sheetName string, logger *slog.Logger, opts ...option.ClientOption) (*SheetsStorage, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &SheetsStorage{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

func (s *SheetsStorage) tableRange() string {
	return fmt.Sprintf("%s!A:D", s.sheetName)
}

func (s *SheetsStorage) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:D%d", s.sheetName, row, row)
}

// Health and lifecycle methods

func (s *SheetsStorage) Ping(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1:D1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets ping failed: %w", err)
	}
	return nil
}

func (s *SheetsStorage) Close() error {
	return nil
}

// Session operations

func (s *SheetsStorage) Load(ctx context.Context, username string) (*session.Fields, error) {
	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}
	row, f := findRow(rows, username)
	if row == 0 {
		return nil, nil
	}
	return f, nil
}

func (s *SheetsStorage) Save(ctx context.Context, username string, f session.Fields) error {
	if err := s.checkCells(username, f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows(ctx)
	if err != nil {
		return err
	}
	row, _ := findRow(rows, username)
	if row == 0 {
		return s.appendRow(ctx, rows, username, f)
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{toRow(username, f)}}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(row), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		s.logger.Error("Failed to update session row", "username", username, "row", row,
			"history_chars", utf8.RuneCountInString(f.History), "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SheetsStorage) Seed(ctx context.Context, username string, seed session.Fields) (*session.Fields, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, false, err
	}
	if row, f := findRow(rows, username); row != 0 {
		return f, false, nil
	}
	if err := s.appendRow(ctx, rows, username, seed); err != nil {
		return nil, false, err
	}
	return &seed, true, nil
}

func (s *SheetsStorage) readRows(ctx context.Context) ([][]interface{}, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.tableRange()).Context(ctx).Do()
	if err != nil {
		s.logger.Error("Failed to read sheet", "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return resp.Values, nil
}

func (s *SheetsStorage) appendRow(ctx context.Context, rows [][]interface{}, username string, f session.Fields) error {
	if err := s.checkCells(username, f); err != nil {
		return err
	}

	values := [][]interface{}{toRow(username, f)}
	if len(rows) == 0 {
		values = append([][]interface{}{sheetHeader}, values...)
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.tableRange(), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		s.logger.Error("Failed to append session row", "username", username,
			"history_chars", utf8.RuneCountInString(f.History), "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SheetsStorage) checkCells(username string, f session.Fields) error {
	for _, c := range []struct{ name, value string }{
		{"level", f.Level},
		{"inventory", f.Inventory},
		{"history", f.History},
	} {
		if n := utf8.RuneCountInString(c.value); n > MaxCellChars {
			s.logger.Error("Session field too large for sheet cell",
				"username", username, "field", c.name, "chars", n, "limit", MaxCellChars)
			return fmt.Errorf("failed to save session: %w: %s has %d characters, limit %d",
				ErrCellTooLarge, c.name, n, MaxCellChars)
		}
	}
	return nil
}

// findRow returns the 1-based sheet row holding username, skipping the
// header, or 0 when absent.
func findRow(rows [][]interface{}, username string) (int, *session.Fields) {
	for i, r := range rows {
		if i == 0 {
			continue
		}
		if cell(r, 0) == username {
			return i + 1, &session.Fields{
				Level:     cell(r, 1),
				Inventory: cell(r, 2),
				History:   cell(r, 3),
			}
		}
	}
	return 0, nil
}

// cell reads column i; the API trims trailing empty cells from a row.
func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return fmt.Sprint(row[i])
}

func toRow(username string, f session.Fields) []interface{} {
	return []interface{}{username, f.Level, f.Inventory, f.History}
}
