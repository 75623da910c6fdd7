// Package preferences persists the reader's image quality and server choice
// in a TOML file.
package preferences

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const (
	QualityHigh = "hq"
	QualityLow  = "lq"

	ServerDefault = ""
	ServerTwo     = "s2"
)

// ErrInvalid is returned for values outside the allowed sets
var ErrInvalid = errors.New("invalid preference")

// Settings are the reader preferences sent with chapter requests
type Settings struct {
	Quality string `toml:"quality" json:"quality"`
	Server  string `toml:"server" json:"server"`
}

// Default returns high quality on the first server
func Default() Settings {
	return Settings{Quality: QualityHigh, Server: ServerDefault}
}

// Validate checks both values
func (s Settings) Validate() error {
	switch s.Quality {
	case QualityHigh, QualityLow:
	default:
		return fmt.Errorf("%w: quality %q (want %q or %q)", ErrInvalid, s.Quality, QualityHigh, QualityLow)
	}
	switch s.Server {
	case ServerDefault, ServerTwo:
	default:
		return fmt.Errorf("%w: server %q (want %q or %q)", ErrInvalid, s.Server, ServerDefault, ServerTwo)
	}
	return nil
}

// Store holds the current settings and writes changes to disk
type Store struct {
	path    string
	mu      sync.RWMutex
	current Settings
}

// Open loads settings from path. A missing file yields the defaults; an
// empty path keeps settings in memory only.
func Open(path string) (*Store, error) {
	s := &Store{path: path, current: Default()}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	loaded := Default()
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	s.current = loaded
	return s, nil
}

// Get returns the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set validates and persists settings
func (s *Store) Set(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := s.write(settings); err != nil {
			return err
		}
	}
	s.current = settings
	return nil
}

func (s *Store) write(settings Settings) error {
	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
