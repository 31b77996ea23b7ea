package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
	internalstorage "github.com/vishan-khatavkar/echoes-game/internal/storage"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

func main() {
	sqlitePath := flag.String("sqlite", "", "check every row of this SQLite session database")
	storyFile := flag.String("story", "", "validate this story file and use it for defaults")
	fix := flag.Bool("fix", false, "with -sqlite, write repaired rows back")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-story story.yaml] [-sqlite sessions.db [-fix]] [rows.json]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *sqlitePath == "" && flag.NArg() == 0 && *storyFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	st := story.Default()
	if *storyFile != "" {
		var err error
		st, err = story.LoadFile(*storyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Story file %s is valid!\n", *storyFile)
	}

	v := &RowValidator{story: st, out: os.Stdout}
	failed := false

	if flag.NArg() > 0 {
		rows, err := readRowsFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
		if v.Check(flag.Arg(0), rows) > 0 {
			failed = true
		}
	}

	if *sqlitePath != "" {
		n, err := v.checkSQLite(context.Background(), *sqlitePath, *fix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
		if n > 0 && !*fix {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

// Row is one stored session as exported from a store.
type Row struct {
	Username string `json:"username"`
	session.Fields
}

// RowValidator reports rows that defensive parsing would repair.
type RowValidator struct {
	story *story.Story
	out   io.Writer
}

// Check prints a line per repaired row and returns how many need repair.
func (v *RowValidator) Check(source string, rows []Row) int {
	fmt.Fprintf(v.out, "Validating %d rows from %s...\n", len(rows), source)

	bad := 0
	for _, row := range rows {
		if strings.TrimSpace(row.Username) == "" {
			fmt.Fprintf(v.out, "  (blank username): row is unreachable\n")
			bad++
			continue
		}
		_, repairs := session.Parse(row.Username, row.Fields, v.story)
		if !repairs.Any() {
			continue
		}
		bad++
		fmt.Fprintf(v.out, "  %s: %s would be reset\n", row.Username, strings.Join(repairedFields(repairs), ", "))
	}

	if bad == 0 {
		fmt.Fprintln(v.out, "All rows are valid!")
	} else {
		fmt.Fprintf(v.out, "%d of %d rows need repair\n", bad, len(rows))
	}
	return bad
}

func (v *RowValidator) checkSQLite(ctx context.Context, path string, fix bool) (int, error) {
	store, err := internalstorage.NewSQLiteStorage(path, logger.Discard())
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = store.Close()
	}()

	all, err := store.All(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([]Row, 0, len(all))
	for username, f := range all {
		rows = append(rows, Row{Username: username, Fields: f})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Username < rows[j].Username })

	bad := v.Check(path, rows)
	if bad == 0 || !fix {
		return bad, nil
	}

	fixed := 0
	for _, row := range rows {
		rec, repairs := session.Parse(row.Username, row.Fields, v.story)
		if !repairs.Any() {
			continue
		}
		if err := store.Save(ctx, row.Username, session.ToStoreUpdate(rec)); err != nil {
			return bad, fmt.Errorf("failed to repair %s: %w", row.Username, err)
		}
		fixed++
	}
	fmt.Fprintf(v.out, "Repaired %d rows\n", fixed)
	return bad, nil
}

func repairedFields(r session.Repairs) []string {
	var fields []string
	if r.Level {
		fields = append(fields, "level")
	}
	if r.Inventory {
		fields = append(fields, "inventory")
	}
	if r.History {
		fields = append(fields, "history")
	}
	return fields
}

func readRowsFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("file %s is not a JSON array of rows: %w", path, err)
	}
	return rows, nil
}
