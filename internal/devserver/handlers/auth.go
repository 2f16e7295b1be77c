package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/filedeck/filedeck/internal/validate"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const (
	refreshCookie = "refresh_token"

	verifyEmailTTL   = 24 * time.Hour
	resetPasswordTTL = time.Hour
	passcodeTTL      = 10 * time.Minute
	oauthTTL         = 10 * time.Minute

	devOAuthProvider = "dev"
	devOAuthEmail    = "oauth.dev@filedeck.local"
)

var errTokenInvalid = errors.New("token invalid or expired")

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var req api.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	var errs validate.Errors
	errs.Add("email", validate.Email(req.Email))
	errs.Add("password", validate.Password(req.Password))
	if err := errs.Err(); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}

	email := utils.NormalizeEmail(req.Email)
	var count int64
	h.DB.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return utils.Detail(c, fiber.StatusConflict, "Email already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return err
	}
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		StorageLimit: h.Config.DefaultStorageLimit,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return err
	}
	if err := h.sendVerification(c, &user); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(api.MessageResponse{
		Message: "Registration successful. Check your email to verify your account.",
		UserID:  user.ID,
	})
}

func (h *Deps) sendVerification(c *fiber.Ctx, user *models.User) error {
	token, err := h.issueToken(user.ID, models.PurposeVerifyEmail, verifyEmailTTL)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Confirm your address with: filedeck verify-email %s", token)
	return h.Mail.Send(c.UserContext(), user.Email, "Verify your filedeck account", body)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var req api.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	var user models.User
	err := h.DB.First(&user, "email = ?", utils.NormalizeEmail(req.Email)).Error
	if err != nil || !utils.CheckPassword(user.PasswordHash, req.Password) {
		middleware.RecordAuthAttempt("password", false)
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	if user.TOTPEnabled {
		if req.TOTPCode == "" {
			return c.JSON(api.LoginResponse{TOTPRequired: true, Message: "TOTP code required"})
		}
		if !h.validTOTP(req.TOTPCode, user.TOTPSecret) {
			middleware.RecordAuthAttempt("totp", false)
			return utils.Detail(c, fiber.StatusUnauthorized, "Invalid TOTP code")
		}
	}

	resp, err := h.startSession(c, &user)
	if err != nil {
		return err
	}
	middleware.RecordAuthAttempt("password", true)
	return c.JSON(resp)
}

// startSession opens a device session and issues its first token pair.
func (h *AuthHandler) startSession(c *fiber.Ctx, user *models.User) (*api.LoginResponse, error) {
	now := h.Now()
	session := models.DeviceSession{
		UserAgent:  c.Get("User-Agent"),
		IPAddress:  c.IP(),
		UserID:     user.ID,
		LastSeenAt: now,
		ExpiresAt:  now.Add(h.Config.JWT.RefreshTTL),
	}
	session.ID = uuid.NewString()

	refresh, jti, err := h.Tokens.Refresh(user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	session.TokenID = jti
	if err := h.DB.Create(&session).Error; err != nil {
		return nil, err
	}
	access, err := h.Tokens.Access(user, session.ID)
	if err != nil {
		return nil, err
	}
	h.setRefreshCookie(c, refresh, session.ExpiresAt)

	return &api.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		UserID:       user.ID,
	}, nil
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/auth",
		Expires:  expires,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// refreshTokenFrom reads the refresh token from the JSON body, falling back
// to the httpOnly cookie.
func refreshTokenFrom(c *fiber.Ctx) string {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	return c.Cookies(refreshCookie)
}

func (h *AuthHandler) refresh(c *fiber.Ctx) error {
	token := refreshTokenFrom(c)
	if token == "" {
		return utils.Detail(c, fiber.StatusUnauthorized, "Refresh token missing")
	}
	claims, err := h.Tokens.Parse(token, utils.TokenRefresh)
	if err != nil {
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}

	var session models.DeviceSession
	if err := h.DB.First(&session, "id = ?", claims.SessionID).Error; err != nil {
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}
	now := h.Now()
	if session.RevokedAt != nil || now.After(session.ExpiresAt) {
		return utils.Detail(c, fiber.StatusUnauthorized, "Session has been revoked")
	}
	if session.TokenID != claims.ID {
		// A rotated token came back: treat the family as stolen.
		h.Log.Warn("refresh_token_reuse", "session_id", session.ID, "user_id", session.UserID)
		if err := h.DB.Model(&session).Update("revoked_at", now).Error; err != nil {
			return err
		}
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid refresh token")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", session.UserID).Error; err != nil {
		return utils.Detail(c, fiber.StatusUnauthorized, "User not found")
	}

	refresh, jti, err := h.Tokens.Refresh(user.ID, session.ID)
	if err != nil {
		return err
	}
	access, err := h.Tokens.Access(&user, session.ID)
	if err != nil {
		return err
	}
	if err := h.DB.Model(&session).Updates(map[string]any{"token_id": jti, "last_seen_at": now}).Error; err != nil {
		return err
	}
	h.setRefreshCookie(c, refresh, session.ExpiresAt)

	return c.JSON(api.TokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
}

func (h *AuthHandler) logout(c *fiber.Ctx) error {
	sid := ""
	if claims, err := h.Tokens.Parse(refreshTokenFrom(c), utils.TokenRefresh); err == nil {
		sid = claims.SessionID
	} else if bearer := strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer")); bearer != "" {
		if claims, err := h.Tokens.Parse(bearer, utils.TokenAccess); err == nil {
			sid = claims.SessionID
		}
	}
	if sid != "" {
		if err := h.DB.Model(&models.DeviceSession{}).Where("id = ? AND revoked_at IS NULL", sid).Update("revoked_at", h.Now()).Error; err != nil {
			return err
		}
	}
	c.ClearCookie(refreshCookie)
	return utils.Message(c, fiber.StatusOK, "Logged out")
}

// issueToken stores a one-time token for userID and returns its plain value.
func (h *Deps) issueToken(userID string, purpose models.TokenPurpose, ttl time.Duration) (string, error) {
	token := utils.RandomToken(24)
	rec := models.OneTimeToken{
		UserID:    userID,
		Purpose:   purpose,
		Digest:    utils.Digest(token),
		ExpiresAt: h.Now().Add(ttl),
	}
	if err := h.DB.Create(&rec).Error; err != nil {
		return "", err
	}
	return token, nil
}

// consumeToken marks a one-time token used and returns it. Each token can
// be consumed once.
func (h *AuthHandler) consumeToken(purpose models.TokenPurpose, token string) (*models.OneTimeToken, error) {
	if token == "" {
		return nil, errTokenInvalid
	}
	var rec models.OneTimeToken
	err := h.DB.First(&rec, "digest = ? AND purpose = ?", utils.Digest(token), purpose).Error
	if err != nil || rec.UsedAt != nil || h.Now().After(rec.ExpiresAt) {
		return nil, errTokenInvalid
	}
	res := h.DB.Model(&models.OneTimeToken{}).
		Where("id = ? AND used_at IS NULL", rec.ID).
		Update("used_at", h.Now())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, errTokenInvalid
	}
	return &rec, nil
}

func (h *AuthHandler) verifyEmail(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	rec, err := h.consumeToken(models.PurposeVerifyEmail, req.Token)
	if err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid or expired verification token")
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", rec.UserID).Update("is_verified", true).Error; err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "Email verified")
}

func (h *AuthHandler) forgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", utils.NormalizeEmail(req.Email)).Error; err == nil {
		token, err := h.issueToken(user.ID, models.PurposeResetPassword, resetPasswordTTL)
		if err != nil {
			return err
		}
		body := fmt.Sprintf("Reset your password with: filedeck password reset %s", token)
		if err := h.Mail.Send(c.UserContext(), user.Email, "Reset your filedeck password", body); err != nil {
			return err
		}
	}
	return utils.Message(c, fiber.StatusOK, "If the account exists, a reset link has been sent.")
}

func (h *AuthHandler) resetPassword(c *fiber.Ctx) error {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Password(req.NewPassword); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}
	rec, err := h.consumeToken(models.PurposeResetPassword, req.Token)
	if err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid or expired reset token")
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", rec.UserID).Update("password_hash", hash).Error; err != nil {
		return err
	}
	h.revokeSessions(rec.UserID, "")
	return utils.Message(c, fiber.StatusOK, "Password has been reset")
}

func (h *AuthHandler) generatePasscode(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Email(req.Email); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", utils.NormalizeEmail(req.Email)).Error; err == nil {
		now := h.Now()
		h.DB.Model(&models.OneTimeToken{}).
			Where("user_id = ? AND purpose = ? AND used_at IS NULL", user.ID, models.PurposePasscode).
			Update("used_at", now)

		code := utils.RandomDigits(6)
		hash, err := utils.HashPassword(code)
		if err != nil {
			return err
		}
		rec := models.OneTimeToken{UserID: user.ID, Purpose: models.PurposePasscode, Hash: hash, ExpiresAt: now.Add(passcodeTTL)}
		if err := h.DB.Create(&rec).Error; err != nil {
			return err
		}
		body := fmt.Sprintf("Your filedeck login passcode is %s. It expires in %d minutes.", code, int(passcodeTTL.Minutes()))
		if err := h.Mail.Send(c.UserContext(), user.Email, "Your filedeck passcode", body); err != nil {
			return err
		}
	}
	return utils.Message(c, fiber.StatusOK, "If the account exists, a passcode has been sent.")
}

func (h *AuthHandler) verifyPasscode(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Passcode string `json:"passcode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", utils.NormalizeEmail(req.Email)).Error; err != nil {
		middleware.RecordAuthAttempt("passcode", false)
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid or expired passcode")
	}
	var rec models.OneTimeToken
	err := h.DB.Where("user_id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?", user.ID, models.PurposePasscode, h.Now()).
		Order("created_at desc").
		First(&rec).Error
	if err != nil || !utils.CheckPassword(rec.Hash, strings.TrimSpace(req.Passcode)) {
		middleware.RecordAuthAttempt("passcode", false)
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid or expired passcode")
	}
	h.DB.Model(&rec).Update("used_at", h.Now())
	if !user.IsVerified {
		h.DB.Model(&user).Update("is_verified", true)
	}

	resp, err := h.startSession(c, &user)
	if err != nil {
		return err
	}
	middleware.RecordAuthAttempt("passcode", true)
	return c.JSON(resp)
}

// --- TOTP ---

func (h *AuthHandler) validTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, h.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (h *AuthHandler) setupTOTP(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user.TOTPEnabled {
		return utils.Detail(c, fiber.StatusConflict, "Two-factor authentication is already enabled")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "filedeck",
		AccountName: user.Email,
	})
	if err != nil {
		return utils.Detail(c, fiber.StatusInternalServerError, "Failed to generate TOTP secret")
	}
	if err := h.DB.Model(user).Update("totp_pending", key.Secret()).Error; err != nil {
		return err
	}
	return c.JSON(api.TOTPSetup{Secret: key.Secret(), OTPAuthURL: key.URL()})
}

func (h *AuthHandler) enableTOTP(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if user.TOTPEnabled {
		return utils.Detail(c, fiber.StatusConflict, "Two-factor authentication is already enabled")
	}
	if user.TOTPPending == "" {
		return utils.Detail(c, fiber.StatusBadRequest, "Two-factor setup has not been started")
	}
	if !h.validTOTP(req.Code, user.TOTPPending) {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid TOTP code")
	}
	err := h.DB.Model(user).Updates(map[string]any{
		"totp_secret":  user.TOTPPending,
		"totp_enabled": true,
		"totp_pending": "",
	}).Error
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "Two-factor authentication enabled")
}

func (h *AuthHandler) disableTOTP(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var req struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !user.TOTPEnabled {
		return utils.Detail(c, fiber.StatusBadRequest, "Two-factor authentication is not enabled")
	}
	// Status 400, not 401: a 401 here would trigger a token refresh.
	if user.PasswordHash != "" && !utils.CheckPassword(user.PasswordHash, req.Password) {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid password")
	}
	if !h.validTOTP(req.Code, user.TOTPSecret) {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid TOTP code")
	}
	err := h.DB.Model(user).Updates(map[string]any{"totp_secret": "", "totp_enabled": false}).Error
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "Two-factor authentication disabled")
}

// --- OAuth ---

func (h *AuthHandler) oauthProvider(c *fiber.Ctx) (string, bool) {
	provider := c.Params("provider")
	return provider, provider == devOAuthProvider && h.Config.OAuthDevProvider
}

func (h *AuthHandler) oauthAuthorizeURL(c *fiber.Ctx) error {
	provider, ok := h.oauthProvider(c)
	if !ok {
		return utils.Detail(c, fiber.StatusNotFound, "Unknown OAuth provider")
	}
	redirectURI := c.Query("redirect_uri")
	if redirectURI == "" {
		return utils.Detail(c, fiber.StatusBadRequest, "redirect_uri is required")
	}
	if _, err := url.ParseRequestURI(redirectURI); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "redirect_uri is invalid")
	}

	grant := models.OAuthGrant{
		Provider:    provider,
		State:       utils.RandomToken(16),
		RedirectURI: redirectURI,
		ExpiresAt:   h.Now().Add(oauthTTL),
	}
	if err := h.DB.Create(&grant).Error; err != nil {
		return err
	}
	consent := fmt.Sprintf("%s/auth/oauth/%s/consent?state=%s", c.BaseURL(), provider, url.QueryEscape(grant.State))
	return c.JSON(fiber.Map{"url": consent})
}

// oauthConsent stands in for the provider's consent screen: it approves the
// request and redirects back with a code. login_hint picks the account.
func (h *AuthHandler) oauthConsent(c *fiber.Ctx) error {
	provider, ok := h.oauthProvider(c)
	if !ok {
		return utils.Detail(c, fiber.StatusNotFound, "Unknown OAuth provider")
	}
	var grant models.OAuthGrant
	err := h.DB.First(&grant, "provider = ? AND state = ?", provider, c.Query("state")).Error
	if err != nil || grant.Code != "" || h.Now().After(grant.ExpiresAt) {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid or expired OAuth state")
	}

	email := devOAuthEmail
	if hint := c.Query("login_hint"); validate.Email(hint) == nil {
		email = utils.NormalizeEmail(hint)
	}
	code := utils.RandomToken(24)
	if err := h.DB.Model(&grant).Updates(map[string]any{"code": code, "email": email}).Error; err != nil {
		return err
	}

	target, err := url.Parse(grant.RedirectURI)
	if err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "redirect_uri is invalid")
	}
	q := target.Query()
	q.Set("code", code)
	q.Set("state", grant.State)
	target.RawQuery = q.Encode()
	return c.Redirect(target.String(), fiber.StatusFound)
}

func (h *AuthHandler) oauthCallback(c *fiber.Ctx) error {
	provider, ok := h.oauthProvider(c)
	if !ok {
		return utils.Detail(c, fiber.StatusNotFound, "Unknown OAuth provider")
	}
	var req struct {
		Code        string `json:"code"`
		State       string `json:"state"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	var grant models.OAuthGrant
	err := h.DB.First(&grant, "provider = ? AND state = ?", provider, req.State).Error
	if err != nil || grant.Code == "" || grant.Code != req.Code || grant.UsedAt != nil ||
		grant.RedirectURI != req.RedirectURI || h.Now().After(grant.ExpiresAt) {
		middleware.RecordAuthAttempt("oauth", false)
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid OAuth code")
	}
	h.DB.Model(&grant).Update("used_at", h.Now())

	var user models.User
	err = h.DB.First(&user, "email = ?", grant.Email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Email: grant.Email, IsVerified: true, StorageLimit: h.Config.DefaultStorageLimit}
		err = h.DB.Create(&user).Error
	}
	if err != nil {
		return err
	}

	resp, err := h.startSession(c, &user)
	if err != nil {
		return err
	}
	middleware.RecordAuthAttempt("oauth", true)
	return c.JSON(resp)
}
