package middleware

import (
	"log/slog"
	"strings"

	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	currentUserKey    = "currentUser"
	currentSessionKey = "currentSession"
)

type Auth struct {
	DB     *gorm.DB
	Tokens *utils.Tokens
	Log    *slog.Logger
}

func NewAuth(db *gorm.DB, tokens *utils.Tokens, log *slog.Logger) *Auth {
	return &Auth{DB: db, Tokens: tokens, Log: log}
}

// RequireAuth accepts a bearer access token whose device session is still
// live.
func (m *Auth) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return utils.Detail(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid authorization header")
	}

	claims, err := m.Tokens.Parse(tokenString, utils.TokenAccess)
	if err != nil {
		m.Log.Debug("jwt_validation_failed", "path", c.Path(), "error", err)
		return utils.Detail(c, fiber.StatusUnauthorized, "Invalid or expired token")
	}

	var session models.DeviceSession
	if err := m.DB.First(&session, "id = ?", claims.SessionID).Error; err != nil || session.RevokedAt != nil {
		return utils.Detail(c, fiber.StatusUnauthorized, "Session has been revoked")
	}

	var user models.User
	if err := m.DB.First(&user, "id = ?", claims.Subject).Error; err != nil {
		return utils.Detail(c, fiber.StatusUnauthorized, "User not found")
	}

	c.Locals(currentUserKey, &user)
	c.Locals(currentSessionKey, session.ID)
	return c.Next()
}

// CurrentUser is the user RequireAuth loaded, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(currentUserKey).(*models.User)
	return user
}

func CurrentSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(currentSessionKey).(string)
	return sid
}
