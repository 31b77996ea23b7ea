package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
)

// PendingFile keeps unsaved rows in a JSON file so they survive a restart.
// An empty path keeps them in memory only.
type PendingFile struct {
	path string

	mu      sync.Mutex
	entries map[string]session.Fields
}

// Ensure PendingFile implements Pending interface
var _ storage.Pending = (*PendingFile)(nil)

// NewPendingFile loads any entries already on disk at path.
func NewPendingFile(path string) (*PendingFile, error) {
	p := &PendingFile{
		path:    path,
		entries: make(map[string]session.Fields),
	}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending saves: %w", err)
	}
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p.entries); err != nil {
		return nil, fmt.Errorf("failed to parse pending saves %s: %w", path, err)
	}
	if p.entries == nil {
		p.entries = make(map[string]session.Fields)
	}
	return p, nil
}

func (p *PendingFile) Put(username string, f session.Fields) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[username] = f
	return p.flush()
}

func (p *PendingFile) Get(username string) (session.Fields, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.entries[username]
	return f, ok
}

func (p *PendingFile) Remove(username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[username]; !ok {
		return nil
	}
	delete(p.entries, username)
	return p.flush()
}

func (p *PendingFile) All() map[string]session.Fields {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]session.Fields, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}

// flush rewrites the file through a temp file and rename. Callers hold mu.
func (p *PendingFile) flush() error {
	if p.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(p.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending saves: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create pending dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pending saves: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("failed to write pending saves: %w", err)
	}
	return nil
}
