// Package session tracks who is signed in. A Manager owns the authentication
// state machine on top of an api.Client and its token store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/filedeck/filedeck/internal/api"
)

// State is the authentication state.
type State int

const (
	Anonymous State = iota
	// Checking means a stored token is being checked on startup.
	Checking
	Authenticated
	// TOTPPending means the password was accepted and a TOTP code is needed.
	TOTPPending
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	case TOTPPending:
		return "totp_pending"
	default:
		return "unknown"
	}
}

// Options holds the behaviour that used to differ between front ends.
type Options struct {
	// PreloadProfile fetches the user profile during Init. Without it the
	// user is the minimal {id} record until RefreshProfile is called.
	PreloadProfile bool
	Logger         *slog.Logger
	// OnChange, when set, receives a snapshot after every state change.
	OnChange func(Snapshot)
}

// DefaultOptions preloads the profile.
func DefaultOptions() Options {
	return Options{PreloadProfile: true}
}

// Snapshot is a consistent copy of the manager state.
type Snapshot struct {
	State   State
	User    *api.User
	Loading bool
	Err     string
}

func (s Snapshot) Authenticated() bool { return s.State == Authenticated }

// Manager is safe for concurrent use. Concurrent calls to the same method
// are not serialized; the last one to finish wins.
type Manager struct {
	client *api.Client
	opts   Options
	log    *slog.Logger

	mu      sync.RWMutex
	state   State
	user    *api.User
	loading bool
	err     string
}

// New returns a manager over client. Until Init runs, a stored token puts the
// manager in Checking with loading set; otherwise it is Anonymous.
func New(client *api.Client, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{client: client, opts: opts, log: log}
	if client.Store().Get() != "" {
		m.state = Checking
		m.loading = true
	}
	return m
}

func (m *Manager) Client() *api.Client { return m.client }

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state, Loading: m.loading, Err: m.err}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

func (m *Manager) State() State { return m.Snapshot().State }

func (m *Manager) User() *api.User { return m.Snapshot().User }

// update mutates state under the lock and notifies OnChange afterwards.
func (m *Manager) update(fn func()) {
	m.mu.Lock()
	fn()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if m.opts.OnChange != nil {
		m.opts.OnChange(snap)
	}
}

// Init runs the startup check. A stored token marks the session
// authenticated straight away; a failed profile load only degrades the user
// to {id}.
func (m *Manager) Init(ctx context.Context) {
	store := m.client.Store()
	if store.Get() == "" {
		m.update(func() {
			m.state = Anonymous
			m.user = nil
			m.loading = false
		})
		return
	}

	id := store.UserID()
	if id == "" {
		if claims, err := api.PeekClaims(store.Get()); err == nil {
			id = claims.Subject
		}
	}
	m.update(func() {
		m.state = Authenticated
		m.user = api.MinimalUser(id)
		m.loading = true
	})

	if m.opts.PreloadProfile {
		m.loadProfile(ctx, id)
	}
	m.update(func() { m.loading = false })
}

// loadProfile is best effort. Only an expired session changes the state.
func (m *Manager) loadProfile(ctx context.Context, id string) {
	var (
		user *api.User
		err  error
	)
	if id != "" {
		user, err = m.client.Auth.GetUser(ctx, id)
	} else {
		user, err = m.client.Auth.Me(ctx)
	}
	if err != nil {
		if errors.Is(err, api.ErrSessionExpired) {
			m.expire()
			return
		}
		m.log.Warn("profile fetch failed", "user_id", id, "error", err)
		return
	}
	m.update(func() {
		if m.state == Authenticated {
			m.user = user
		}
	})
}

func (m *Manager) expire() {
	m.update(func() {
		m.state = Anonymous
		m.user = nil
	})
}

// run brackets fn with loading and the error slot. The error is returned
// unchanged.
func (m *Manager) run(fallback string, fn func() error) error {
	m.update(func() {
		m.loading = true
		m.err = ""
	})
	err := fn()
	m.update(func() {
		m.loading = false
		if err == nil {
			return
		}
		m.err = err.Error()
		if m.err == "" {
			m.err = fallback
		}
		if errors.Is(err, api.ErrSessionExpired) {
			m.state = Anonymous
			m.user = nil
		}
	})
	return err
}
