package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// storage reads and writes one JSON file per group under dir. Writes go
// through a temp file and rename so a crash never leaves a half-written
// group behind.
type storage struct {
	dir string
}

func (s storage) path(group string) string {
	return filepath.Join(s.dir, group+".json")
}

// load reads a group file. A missing file is an empty group, not an
// error.
func (s storage) load(group string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path(group))
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group %q: %w", group, err)
	}
	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse group %q: %w", group, err)
	}
	return entries, nil
}

func (s storage) save(group string, entries map[string]json.RawMessage) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal group %q: %w", group, err)
	}

	tmp, err := os.CreateTemp(s.dir, group+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save group %q: %w", group, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save group %q: %w", group, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save group %q: %w", group, err)
	}
	if err := os.Rename(tmp.Name(), s.path(group)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save group %q: %w", group, err)
	}
	return nil
}
