package settings

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store holds the current settings and tells subscribers which key changed.
// It is shared between HTTP handlers and engine loops, so it locks.
type Store struct {
	mu   sync.RWMutex
	cur  Settings
	path string
	subs []func(Key)
}

// NewStore returns an in-memory store seeded with s.
func NewStore(s Settings) *Store {
	return &Store{cur: s}
}

// Open loads settings from a YAML file. A missing file yields defaults;
// later changes are written back to path.
func Open(path string) (*Store, error) {
	st := &Store{cur: Default(), path: path}
	if path == "" {
		return st, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &st.cur); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// OnChange registers fn to run after every successful Set.
func (s *Store) OnChange(fn func(Key)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Set updates one setting, persists the result and notifies subscribers.
func (s *Store) Set(key Key, raw string) (Settings, error) {
	s.mu.Lock()
	next, err := s.cur.With(key, raw)
	if err != nil {
		cur := s.cur
		s.mu.Unlock()
		return cur, err
	}
	// next only goes live once it is saved.
	if s.path != "" {
		if err := save(s.path, next); err != nil {
			cur := s.cur
			s.mu.Unlock()
			return cur, err
		}
	}
	s.cur = next
	subs := append([]func(Key){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(key)
	}
	return next, nil
}

func save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
