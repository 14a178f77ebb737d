// Package settings persists the default job parameters in a flat JSON file.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gelecek/folder-uploader/internal/model"
)

// Store defines persistence operations for job defaults
type Store interface {
	Load(ctx context.Context) model.Settings
	Save(ctx context.Context, s model.Settings) error
}

// JSONStore persists settings in a single JSON file on disk
type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string {
	return s.path
}

// Load reads settings from disk. It never fails: a missing or broken file
// yields the defaults, keys missing in the file keep their default value.
func (s *JSONStore) Load(ctx context.Context) model.Settings {
	out := model.DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.DebugContext(ctx, "settings file does not exist: using defaults", "path", s.path)
		} else {
			slog.WarnContext(ctx, "could not load settings: using defaults", "path", s.path, "error", err)
		}
		return out
	}

	if err := json.Unmarshal(data, &out); err != nil {
		slog.WarnContext(ctx, "could not parse settings: using defaults", "path", s.path, "error", err)
		return model.DefaultSettings()
	}
	slog.DebugContext(ctx, "settings loaded", "path", s.path)
	return out
}

// Save writes settings as indented JSON. The file is replaced atomically.
func (s *JSONStore) Save(ctx context.Context, settings model.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersist, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersist, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersist, err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	err = errors.Join(err, f.Close())
	if err == nil {
		err = os.Rename(tmp, s.path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", model.ErrPersist, err)
	}
	slog.InfoContext(ctx, "settings saved", "path", s.path)
	return nil
}
