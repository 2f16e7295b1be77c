package session

import (
	"context"
	"errors"

	"github.com/filedeck/filedeck/internal/api"
)

var errNoToken = errors.New("server did not return an access token")

// Login signs in with a password. When the account has TOTP enabled and
// totpCode is empty, the raw response is returned with nothing stored and
// the state moves to TOTPPending; call Login again with the code.
func (m *Manager) Login(ctx context.Context, email, password, totpCode string) (*api.LoginResponse, error) {
	var resp *api.LoginResponse
	err := m.run("Login failed", func() error {
		r, err := m.client.Auth.Login(ctx, api.LoginRequest{Email: email, Password: password, TOTPCode: totpCode})
		if err != nil {
			return err
		}
		resp = r
		if r.TOTPRequired && totpCode == "" {
			m.update(func() { m.state = TOTPPending })
			return nil
		}
		return m.establish(r)
	})
	if err != nil {
		return nil, err
	}
	if m.State() == Authenticated {
		m.loadProfile(ctx, m.client.Store().UserID())
	}
	return resp, nil
}

// establish stores the tokens from a successful sign-in.
func (m *Manager) establish(r *api.LoginResponse) error {
	if r.AccessToken == "" {
		return errNoToken
	}
	store := m.client.Store()
	if err := store.Set(r.AccessToken, r.RefreshToken); err != nil {
		return err
	}
	id := r.UserID
	if id == "" {
		if claims, err := api.PeekClaims(r.AccessToken); err == nil {
			id = claims.Subject
		}
	}
	if err := store.SetUserID(id); err != nil {
		return err
	}
	m.update(func() {
		m.state = Authenticated
		m.user = api.MinimalUser(id)
	})
	return nil
}

// Logout tells the backend (best effort) and always forgets the session.
func (m *Manager) Logout(ctx context.Context) error {
	if m.client.Store().Get() != "" {
		if err := m.client.Auth.Logout(ctx); err != nil {
			m.log.Warn("logout request failed", "error", err)
		}
	}
	err := m.client.Store().Clear()
	m.update(func() {
		m.state = Anonymous
		m.user = nil
		m.err = ""
	})
	return err
}

func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Registration failed", func() (err error) {
		out, err = m.client.Auth.Register(ctx, req)
		return err
	})
	return out, err
}

func (m *Manager) VerifyEmail(ctx context.Context, token string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Email verification failed", func() (err error) {
		out, err = m.client.Auth.VerifyEmail(ctx, token)
		return err
	})
	return out, err
}

func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Password reset request failed", func() (err error) {
		out, err = m.client.Auth.ForgotPassword(ctx, email)
		return err
	})
	return out, err
}

func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Password reset failed", func() (err error) {
		out, err = m.client.Auth.ResetPassword(ctx, token, newPassword)
		return err
	})
	return out, err
}

func (m *Manager) SetupTOTP(ctx context.Context) (*api.TOTPSetup, error) {
	var out *api.TOTPSetup
	err := m.run("TOTP setup failed", func() (err error) {
		out, err = m.client.Auth.SetupTOTP(ctx)
		return err
	})
	return out, err
}

func (m *Manager) VerifyTOTP(ctx context.Context, code string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("TOTP verification failed", func() (err error) {
		out, err = m.client.Auth.VerifyTOTP(ctx, code)
		return err
	})
	if err == nil {
		m.markTwoFactor(true)
	}
	return out, err
}

func (m *Manager) GeneratePasscode(ctx context.Context, email string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Could not send passcode", func() (err error) {
		out, err = m.client.Auth.GeneratePasscode(ctx, email)
		return err
	})
	return out, err
}

// VerifyPasscode signs in with an emailed passcode and stores the tokens.
func (m *Manager) VerifyPasscode(ctx context.Context, email, passcode string) (*api.LoginResponse, error) {
	var out *api.LoginResponse
	err := m.run("Passcode verification failed", func() (err error) {
		out, err = m.client.Auth.VerifyPasscode(ctx, email, passcode)
		if err != nil {
			return err
		}
		return m.establish(out)
	})
	if err != nil {
		return nil, err
	}
	m.loadProfile(ctx, m.client.Store().UserID())
	return out, nil
}

// HandleOAuthCallback exchanges the provider's code and state for tokens.
func (m *Manager) HandleOAuthCallback(ctx context.Context, provider, code, state, redirectURI string) (*api.LoginResponse, error) {
	var out *api.LoginResponse
	err := m.run("OAuth sign-in failed", func() (err error) {
		if code == "" {
			return errors.New("missing authorization code")
		}
		out, err = m.client.Auth.OAuthCallback(ctx, provider, code, state, redirectURI)
		if err != nil {
			return err
		}
		return m.establish(out)
	})
	if err != nil {
		return nil, err
	}
	m.loadProfile(ctx, m.client.Store().UserID())
	return out, nil
}

// RefreshProfile reloads the current user's profile from the backend.
func (m *Manager) RefreshProfile(ctx context.Context) (*api.User, error) {
	var out *api.User
	err := m.run("Could not load profile", func() (err error) {
		out, err = m.client.Auth.Me(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.setUser(out)
	return out, nil
}

func (m *Manager) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*api.User, error) {
	var out *api.User
	err := m.run("Profile update failed", func() (err error) {
		out, err = m.client.Auth.UpdateMe(ctx, update)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.setUser(out)
	return out, nil
}

func (m *Manager) ChangePassword(ctx context.Context, current, next string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Password change failed", func() (err error) {
		out, err = m.client.Auth.ChangePassword(ctx, current, next)
		return err
	})
	return out, err
}

// Setup2FA starts enrollment from the account settings.
func (m *Manager) Setup2FA(ctx context.Context) (*api.TOTPSetup, error) {
	var out *api.TOTPSetup
	err := m.run("Two-factor setup failed", func() (err error) {
		out, err = m.client.Auth.Setup2FA(ctx)
		return err
	})
	return out, err
}

func (m *Manager) Enable2FA(ctx context.Context, code string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Could not enable two-factor authentication", func() (err error) {
		out, err = m.client.Auth.Enable2FA(ctx, code)
		return err
	})
	if err == nil {
		m.markTwoFactor(true)
	}
	return out, err
}

func (m *Manager) Disable2FA(ctx context.Context, code, password string) (*api.MessageResponse, error) {
	var out *api.MessageResponse
	err := m.run("Could not disable two-factor authentication", func() (err error) {
		out, err = m.client.Auth.Disable2FA(ctx, code, password)
		return err
	})
	if err == nil {
		m.markTwoFactor(false)
	}
	return out, err
}

func (m *Manager) setUser(u *api.User) {
	m.update(func() {
		if m.state == Authenticated {
			m.user = u
		}
	})
}

func (m *Manager) markTwoFactor(enabled bool) {
	m.update(func() {
		if m.user != nil {
			m.user.Is2FAEnabled = enabled
		}
	})
}
