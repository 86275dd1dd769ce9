package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
)

// Store keeps Prefs in a YAML file
type Store struct {
	path   string
	logger logr.Logger
}

// NewStore creates a store for the file at path
func NewStore(path string, logger logr.Logger) *Store {
	return &Store{path: filepath.Clean(path), logger: logger.WithName("prefs")}
}

// DefaultPath is prefs.yaml under the user config directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find config directory: %w", err)
	}
	return filepath.Join(dir, "monitop", "prefs.yaml"), nil
}

// Path returns the file the store reads and writes
func (s *Store) Path() string {
	return s.path
}

// Load reads the saved prefs. A missing file yields the defaults.
func (s *Store) Load() (Prefs, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("failed to read prefs: %w", err)
	}

	var p Prefs
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("failed to parse prefs %s: %w", s.path, err)
	}
	return p.Normalize(), nil
}

// Save writes p atomically, so a concurrent Load never sees half a file
func (s *Store) Save(p Prefs) error {
	p = p.Normalize()
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode prefs: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prefs directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp prefs file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace prefs: %w", err)
	}

	s.logger.V(1).Info("saved prefs", "path", s.path, "interval", p.RefreshInterval, "unit", p.SelectedUnit)
	return nil
}

// Watch sends the prefs every time the file is written, including by another
// running dashboard. The channel is closed when ctx ends.
func (s *Store) Watch(ctx context.Context) (<-chan Prefs, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create prefs directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create prefs watcher: %w", err)
	}
	// the file is replaced on save, so watch the directory
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan Prefs, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Close(); err != nil {
				s.logger.Error(err, "failed to close prefs watcher")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				s.logger.V(1).Info("prefs changed", "op", event.Op.String())

				p, err := s.Load()
				if err != nil {
					s.logger.Error(err, "failed to reload prefs")
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error(err, "prefs watcher error")
			}
		}
	}()

	return out, nil
}
