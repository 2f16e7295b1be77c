package api

import (
	"context"
	"net/url"
)

// Auth wraps the authentication service endpoints.
type Auth struct {
	c *Client
}

func (a *Auth) url(path string) string { return a.c.authURL + path }

func (a *Auth) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	var out MessageResponse
	if err := a.c.Post(ctx, a.url("/auth/register"), req, &out, WithoutAuth()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login returns the raw response; callers must check TOTPRequired.
func (a *Auth) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := a.c.Post(ctx, a.url("/auth/login"), req, &out, WithoutAuth()); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) Logout(ctx context.Context) error {
	var body any
	if rt := a.c.store.RefreshToken(); rt != "" {
		body = map[string]string{"refresh_token": rt}
	}
	return a.c.Post(ctx, a.url("/auth/logout"), body, nil)
}

func (a *Auth) VerifyEmail(ctx context.Context, token string) (*MessageResponse, error) {
	var out MessageResponse
	err := a.c.Post(ctx, a.url("/auth/verify-email"), map[string]string{"token": token}, &out, WithoutAuth())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	err := a.c.Post(ctx, a.url("/auth/forgot-password"), map[string]string{"email": email}, &out, WithoutAuth())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) ResetPassword(ctx context.Context, token, newPassword string) (*MessageResponse, error) {
	body := map[string]string{"token": token, "new_password": newPassword}
	var out MessageResponse
	if err := a.c.Post(ctx, a.url("/auth/reset-password"), body, &out, WithoutAuth()); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) SetupTOTP(ctx context.Context) (*TOTPSetup, error) {
	var out TOTPSetup
	if err := a.c.Post(ctx, a.url("/auth/totp/setup"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) VerifyTOTP(ctx context.Context, code string) (*MessageResponse, error) {
	var out MessageResponse
	if err := a.c.Post(ctx, a.url("/auth/totp/verify"), map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GeneratePasscode asks the backend to email a one-time login passcode.
func (a *Auth) GeneratePasscode(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	err := a.c.Post(ctx, a.url("/auth/generate-passcode"), map[string]string{"email": email}, &out, WithoutAuth())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) VerifyPasscode(ctx context.Context, email, passcode string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "passcode": passcode}
	var out LoginResponse
	if err := a.c.Post(ctx, a.url("/auth/verify-passcode"), body, &out, WithoutAuth()); err != nil {
		return nil, err
	}
	return &out, nil
}

// OAuthAuthorizeURL returns the provider consent URL that redirects back to
// redirectURI with code and state.
func (a *Auth) OAuthAuthorizeURL(ctx context.Context, provider, redirectURI string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	q := url.Values{"redirect_uri": {redirectURI}}
	err := a.c.Get(ctx, a.url("/auth/oauth/"+url.PathEscape(provider)+"/authorize-url"), &out, WithoutAuth(), WithQuery(q))
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (a *Auth) OAuthCallback(ctx context.Context, provider, code, state, redirectURI string) (*LoginResponse, error) {
	body := map[string]string{"code": code, "state": state, "redirect_uri": redirectURI}
	var out LoginResponse
	err := a.c.Post(ctx, a.url("/auth/oauth/"+url.PathEscape(provider)+"/callback"), body, &out, WithoutAuth())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- users ---

func (a *Auth) GetUser(ctx context.Context, id string) (*User, error) {
	var out User
	if err := a.c.Get(ctx, a.url("/users/"+url.PathEscape(id)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) Me(ctx context.Context) (*User, error) {
	var out User
	if err := a.c.Get(ctx, a.url("/users/me"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) UpdateMe(ctx context.Context, update ProfileUpdate) (*User, error) {
	var out User
	if err := a.c.Put(ctx, a.url("/users/me"), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) ChangePassword(ctx context.Context, current, next string) (*MessageResponse, error) {
	body := map[string]string{"current_password": current, "new_password": next}
	var out MessageResponse
	if err := a.c.Put(ctx, a.url("/users/me/password"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) Setup2FA(ctx context.Context) (*TOTPSetup, error) {
	var out TOTPSetup
	if err := a.c.Post(ctx, a.url("/users/me/2fa/setup"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) Enable2FA(ctx context.Context, code string) (*MessageResponse, error) {
	var out MessageResponse
	if err := a.c.Post(ctx, a.url("/users/me/2fa/enable"), map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Auth) Disable2FA(ctx context.Context, code, password string) (*MessageResponse, error) {
	body := map[string]string{"code": code, "password": password}
	var out MessageResponse
	if err := a.c.Post(ctx, a.url("/users/me/2fa/disable"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- sessions ---

func (a *Auth) Sessions(ctx context.Context) ([]DeviceSession, error) {
	var out []DeviceSession
	if err := a.c.Get(ctx, a.url("/sessions/me"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Auth) RevokeSession(ctx context.Context, id string) error {
	return a.c.Delete(ctx, a.url("/sessions/"+url.PathEscape(id)), nil)
}

func (a *Auth) RevokeAllSessions(ctx context.Context) error {
	return a.c.Delete(ctx, a.url("/sessions/revoke/all"), nil)
}
