package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"curveVolume/internal/model"
	"curveVolume/internal/storage/postgres"
)

// StateStore persists the position of the last applied event.
type StateStore interface {
	Load(ctx context.Context) (model.Position, bool, error)
	Save(ctx context.Context, pos model.Position) error
}

// FileStateStore stores state in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	Position  model.Position `json:"position"`
	UpdatedAt string         `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (model.Position, bool, error) {
	if s == nil || s.Path == "" {
		return model.Position{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Position{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.Position, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, pos model.Position) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(stateRecord{Position: pos, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// DBStateStore stores state in the indexer_state table.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (model.Position, bool, error) {
	if s == nil || s.Store == nil {
		return model.Position{}, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, pos model.Position) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, pos)
}
