// Package tokenstore persists the client's access token, refresh token and
// user id. The backend is the only authority on token validity; nothing here
// inspects expiry.
package tokenstore

// Session is the persisted credential record.
type Session struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// Store is the credential store shared by the request pipeline and the
// session manager. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the access token, or "" when none is stored.
	Get() string
	// RefreshToken returns the stored refresh token, or "".
	RefreshToken() string
	// UserID returns the stored user id, or "".
	UserID() string
	// Snapshot returns a copy of the whole record.
	Snapshot() Session
	// Set stores accessToken. refreshToken replaces the stored one only when
	// non-empty.
	Set(accessToken, refreshToken string) error
	SetUserID(id string) error
	// Clear drops every stored value.
	Clear() error
}
