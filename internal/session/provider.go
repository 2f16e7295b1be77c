package session

import (
	"context"
	"errors"
)

// ErrNotAuthenticated is returned by RequireAuthenticated.
var ErrNotAuthenticated = errors.New("not logged in (run 'filedeck login')")

type ctxKey struct{}

// Provide runs the startup check and returns ctx carrying m. Callers block
// until the check has finished.
func Provide(ctx context.Context, m *Manager) context.Context {
	m.Init(ctx)
	return Attach(ctx, m)
}

// Attach returns ctx carrying m without running the startup check, so no
// request is made.
func Attach(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// FromContext returns the manager stored by Provide or Attach.
func FromContext(ctx context.Context) (*Manager, bool) {
	m, ok := ctx.Value(ctxKey{}).(*Manager)
	return m, ok
}

// MustFromContext panics when no manager was provided.
func MustFromContext(ctx context.Context) *Manager {
	m, ok := FromContext(ctx)
	if !ok {
		panic("session: no Manager in context")
	}
	return m
}

// RequireAuthenticated returns the manager when the session is authenticated.
func RequireAuthenticated(ctx context.Context) (*Manager, error) {
	m, ok := FromContext(ctx)
	if !ok || m.State() != Authenticated {
		return nil, ErrNotAuthenticated
	}
	return m, nil
}
