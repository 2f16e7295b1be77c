package tokenstore

import "sync"

// Memory keeps the session in process memory only.
type Memory struct {
	mu sync.RWMutex
	s  Session
}

// NewMemory returns a Memory store seeded with s.
func NewMemory(s Session) *Memory {
	return &Memory{s: s}
}

func (m *Memory) Get() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.AccessToken
}

func (m *Memory) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.RefreshToken
}

func (m *Memory) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.UserID
}

func (m *Memory) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s
}

func (m *Memory) Set(accessToken, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.AccessToken = accessToken
	if refreshToken != "" {
		m.s.RefreshToken = refreshToken
	}
	return nil
}

func (m *Memory) SetUserID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.UserID = id
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = Session{}
	return nil
}
