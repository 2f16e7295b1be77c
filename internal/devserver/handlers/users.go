package handlers

import (
	"strings"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/filedeck/filedeck/internal/validate"
	"github.com/gofiber/fiber/v2"
)

func (h *UsersHandler) me(c *fiber.Ctx) error {
	return c.JSON(userJSON(middleware.CurrentUser(c)))
}

func (h *UsersHandler) getUser(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if c.Params("id") != user.ID {
		return utils.Detail(c, fiber.StatusForbidden, "Not allowed to view this user")
	}
	return c.JSON(userJSON(user))
}

func (h *UsersHandler) updateMe(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var req api.ProfileUpdate
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	updates := map[string]any{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	emailChanged := false
	if req.Email != nil {
		if err := validate.Email(*req.Email); err != nil {
			return utils.Detail(c, fiber.StatusBadRequest, err.Error())
		}
		email := utils.NormalizeEmail(*req.Email)
		if email != user.Email {
			var count int64
			h.DB.Model(&models.User{}).Where("email = ? AND id <> ?", email, user.ID).Count(&count)
			if count > 0 {
				return utils.Detail(c, fiber.StatusConflict, "Email already registered")
			}
			updates["email"] = email
			updates["is_verified"] = false
			emailChanged = true
		}
	}
	if len(updates) > 0 {
		if err := h.DB.Model(user).Updates(updates).Error; err != nil {
			return err
		}
	}
	if err := h.DB.First(user, "id = ?", user.ID).Error; err != nil {
		return err
	}
	if emailChanged {
		if err := h.sendVerification(c, user); err != nil {
			return err
		}
	}
	return c.JSON(userJSON(user))
}

func (h *UsersHandler) changePassword(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if user.PasswordHash != "" && !utils.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return utils.Detail(c, fiber.StatusBadRequest, "Current password is incorrect")
	}
	if err := validate.Password(req.NewPassword); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := h.DB.Model(user).Update("password_hash", hash).Error; err != nil {
		return err
	}
	h.revokeSessions(user.ID, middleware.CurrentSessionID(c))
	return utils.Message(c, fiber.StatusOK, "Password updated")
}

// --- device sessions ---

func (h *UsersHandler) listSessions(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var sessions []models.DeviceSession
	err := h.DB.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", user.ID, h.Now()).
		Order("last_seen_at desc").
		Find(&sessions).Error
	if err != nil {
		return err
	}

	current := middleware.CurrentSessionID(c)
	out := make([]api.DeviceSession, 0, len(sessions))
	for _, ds := range sessions {
		out = append(out, api.DeviceSession{
			ID:         ds.ID,
			UserAgent:  ds.UserAgent,
			IPAddress:  ds.IPAddress,
			CreatedAt:  ds.CreatedAt,
			LastSeenAt: ds.LastSeenAt,
			Current:    ds.ID == current,
		})
	}
	return c.JSON(out)
}

func (h *UsersHandler) revokeSession(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	res := h.DB.Model(&models.DeviceSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", c.Params("id"), user.ID).
		Update("revoked_at", h.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.Detail(c, fiber.StatusNotFound, "Session not found")
	}
	return utils.Message(c, fiber.StatusOK, "Session revoked")
}

func (h *UsersHandler) revokeAllSessions(c *fiber.Ctx) error {
	h.revokeSessions(middleware.CurrentUser(c).ID, "")
	return utils.Message(c, fiber.StatusOK, "All sessions revoked")
}

// revokeSessions ends every live session of userID except keep.
func (h *Deps) revokeSessions(userID, keep string) {
	q := h.DB.Model(&models.DeviceSession{}).Where("user_id = ? AND revoked_at IS NULL", userID)
	if keep != "" {
		q = q.Where("id <> ?", keep)
	}
	if err := q.Update("revoked_at", h.Now()).Error; err != nil {
		h.Log.Error("revoke_sessions_failed", "user_id", userID, "error", err)
	}
}
