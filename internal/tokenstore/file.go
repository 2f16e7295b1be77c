package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirName   = "filedeck"
	fileName  = "session.json"
	dirPerms  = 0700
	filePerms = 0600
)

// DefaultPath returns the session file location inside the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// File persists the session as JSON on disk. The file is read once, on first
// access, and rewritten after every mutation.
type File struct {
	path string

	mu     sync.RWMutex
	loaded bool
	s      Session
}

// NewFile returns a store backed by path. Nothing is read until first use.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the backing file. A missing file is an empty session.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *File) loadLocked() error {
	f.loaded = true
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.s = Session{}
			return nil
		}
		return fmt.Errorf("reading session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding session: %w", err)
	}
	f.s = s
	return nil
}

func (f *File) read() Session {
	f.mu.RLock()
	if f.loaded {
		s := f.s
		f.mu.RUnlock()
		return s
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		// An unreadable file behaves like an empty session.
		_ = f.loadLocked()
	}
	return f.s
}

func (f *File) Get() string          { return f.read().AccessToken }
func (f *File) RefreshToken() string { return f.read().RefreshToken }
func (f *File) UserID() string       { return f.read().UserID }
func (f *File) Snapshot() Session    { return f.read() }

func (f *File) Set(accessToken, refreshToken string) error {
	return f.mutate(func(s *Session) {
		s.AccessToken = accessToken
		if refreshToken != "" {
			s.RefreshToken = refreshToken
		}
	})
}

func (f *File) SetUserID(id string) error {
	return f.mutate(func(s *Session) { s.UserID = id })
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = true
	f.s = Session{}
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *File) mutate(fn func(*Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		_ = f.loadLocked()
	}
	fn(&f.s)
	return f.saveLocked()
}

func (f *File) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), dirPerms); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f.s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, filePerms)
}
