package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/filedeck/filedeck/internal/validate"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	errLinkNotFound     = fiber.NewError(fiber.StatusNotFound, "Link not found")
	errLinkExpired      = fiber.NewError(fiber.StatusGone, "This link has expired")
	errLinkExhausted    = fiber.NewError(fiber.StatusGone, "Download limit reached")
	errPasswordRequired = fiber.NewError(fiber.StatusUnauthorized, "Password required")
	errInvalidPassword  = fiber.NewError(fiber.StatusForbidden, "Invalid password")
)

// parseExpiry accepts an ISO date or an RFC 3339 timestamp. A bare date
// expires at the end of that day, UTC.
func parseExpiry(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		d, derr := time.Parse(validate.ISODate, s)
		if derr != nil {
			return nil, fmt.Errorf("expires_at must be a date (YYYY-MM-DD)")
		}
		t = d.AddDate(0, 0, 1).Add(-time.Second)
	}
	t = t.UTC()
	if !t.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}
	return &t, nil
}

func checkMaxDownloads(n *int) error {
	if n != nil && *n < 1 {
		return fmt.Errorf("max_downloads must be at least 1")
	}
	return nil
}

// newLink validates opts and builds an unsaved link owned by ownerID.
func (h *SharesHandler) newLink(ownerID string, opts api.LinkOptions) (*models.ShareLink, error) {
	expires, err := parseExpiry(opts.ExpiresAt, h.Now())
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := checkMaxDownloads(opts.MaxDownloads); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	link := &models.ShareLink{
		OwnerID:      ownerID,
		Token:        utils.RandomToken(12),
		ExpiresAt:    expires,
		MaxDownloads: opts.MaxDownloads,
		Active:       true,
	}
	if opts.Password != "" {
		if link.PasswordHash, err = utils.HashPassword(opts.Password); err != nil {
			return nil, err
		}
	}
	return link, nil
}

func (h *SharesHandler) linksJSON(links []models.ShareLink) []api.ShareLink {
	out := make([]api.ShareLink, 0, len(links))
	for i := range links {
		out = append(out, h.linkJSON(&links[i]))
	}
	return out
}

func (h *SharesHandler) mailLink(c *fiber.Ctx, to, name string, link *models.ShareLink) error {
	body := fmt.Sprintf("%s shared %q with you: %s", middleware.CurrentUser(c).Email, name, h.linkJSON(link).URL)
	return h.Mail.Send(c.UserContext(), to, "Shared with you on filedeck", body)
}

// --- file links ---

func (h *SharesHandler) createShareLink(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var req api.ShareLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email != "" {
		if err := validate.Email(req.Email); err != nil {
			return utils.Detail(c, fiber.StatusBadRequest, err.Error())
		}
	}
	file, err := h.ownedFile(user.ID, req.FileID)
	if err != nil {
		return err
	}
	link, err := h.newLink(user.ID, req.LinkOptions)
	if err != nil {
		return err
	}
	link.FileID = &file.ID
	link.SharedWith = utils.NormalizeEmail(req.Email)
	if err := h.DB.Create(link).Error; err != nil {
		return err
	}
	if link.SharedWith != "" {
		if err := h.mailLink(c, link.SharedWith, file.Filename, link); err != nil {
			return err
		}
	}
	return c.Status(fiber.StatusCreated).JSON(h.linkJSON(link))
}

func (h *SharesHandler) fileShareLinks(c *fiber.Ctx) error {
	file, err := h.ownedFile(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	var links []models.ShareLink
	if err := h.DB.Where("file_id = ?", file.ID).Order("created_at desc").Find(&links).Error; err != nil {
		return err
	}
	return c.JSON(h.linksJSON(links))
}

func (h *SharesHandler) ownedLink(ownerID, id string) (*models.ShareLink, error) {
	var link models.ShareLink
	err := h.DB.First(&link, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (h *SharesHandler) deleteShareLink(c *fiber.Ctx) error {
	link, err := h.ownedLink(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.DB.Model(link).Update("active", false).Error; err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "Link revoked")
}

func (h *SharesHandler) extendExpiry(c *fiber.Ctx) error {
	link, err := h.ownedLink(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	var req struct {
		ExpiresAt string `json:"expires_at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.ExpiresAt) == "" {
		return utils.Detail(c, fiber.StatusBadRequest, "expires_at is required")
	}
	expires, err := parseExpiry(req.ExpiresAt, h.Now())
	if err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.DB.Model(link).Update("expires_at", expires).Error; err != nil {
		return err
	}
	link.ExpiresAt = expires
	return c.JSON(h.linkJSON(link))
}

func (h *SharesHandler) updateDownloadLimit(c *fiber.Ctx) error {
	link, err := h.ownedLink(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	var req struct {
		MaxDownloads *int `json:"max_downloads"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.MaxDownloads == nil {
		return utils.Detail(c, fiber.StatusBadRequest, "max_downloads is required")
	}
	if err := checkMaxDownloads(req.MaxDownloads); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.DB.Model(link).Update("max_downloads", *req.MaxDownloads).Error; err != nil {
		return err
	}
	link.MaxDownloads = req.MaxDownloads
	return c.JSON(h.linkJSON(link))
}

// --- folder links ---

func (h *SharesHandler) shareFolder(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	folder, err := h.ownedFolder(user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Email(req.Email); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, err.Error())
	}
	link, err := h.newLink(user.ID, api.LinkOptions{})
	if err != nil {
		return err
	}
	link.FolderID = &folder.ID
	link.SharedWith = utils.NormalizeEmail(req.Email)
	if err := h.DB.Create(link).Error; err != nil {
		return err
	}
	if err := h.mailLink(c, link.SharedWith, folder.Name, link); err != nil {
		return err
	}
	return c.JSON(api.MessageResponse{Message: "Folder shared with " + link.SharedWith})
}

func (h *SharesHandler) createFolderLink(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	folder, err := h.ownedFolder(user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	var opts api.LinkOptions
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}
	link, err := h.newLink(user.ID, opts)
	if err != nil {
		return err
	}
	link.FolderID = &folder.ID
	if err := h.DB.Create(link).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(h.linkJSON(link))
}

func (h *SharesHandler) folderLinks(c *fiber.Ctx) error {
	folder, err := h.ownedFolder(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	var links []models.ShareLink
	if err := h.DB.Where("folder_id = ?", folder.ID).Order("created_at desc").Find(&links).Error; err != nil {
		return err
	}
	return c.JSON(h.linksJSON(links))
}

func (h *SharesHandler) folderLinkFor(c *fiber.Ctx) (*models.ShareLink, error) {
	folder, err := h.ownedFolder(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return nil, err
	}
	var link models.ShareLink
	err = h.DB.First(&link, "id = ? AND folder_id = ?", c.Params("linkID"), folder.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (h *SharesHandler) folderLink(c *fiber.Ctx) error {
	link, err := h.folderLinkFor(c)
	if err != nil {
		return err
	}
	return c.JSON(h.linkJSON(link))
}

func (h *SharesHandler) deleteFolderLink(c *fiber.Ctx) error {
	link, err := h.folderLinkFor(c)
	if err != nil {
		return err
	}
	if err := h.DB.Model(link).Update("active", false).Error; err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "Link revoked")
}

// --- public access ---

// publicLink loads an active link by token. Expired and exhausted links
// answer 410 before any password check.
func (h *SharesHandler) publicLink(c *fiber.Ctx, folder bool) (*models.ShareLink, error) {
	q := h.DB.Where("token = ? AND active = ?", c.Params("token"), true)
	if folder {
		q = q.Where("folder_id IS NOT NULL")
	} else {
		q = q.Where("file_id IS NOT NULL")
	}
	var link models.ShareLink
	err := q.First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	if link.Expired(h.Now()) {
		return nil, errLinkExpired
	}
	if link.Exhausted() {
		return nil, errLinkExhausted
	}
	return &link, nil
}

// unlocked opens a link that needs no password or carries a grant for it.
func (h *SharesHandler) unlocked(c *fiber.Ctx, folder bool) (*models.ShareLink, error) {
	link, err := h.publicLink(c, folder)
	if err != nil {
		return nil, err
	}
	if link.PasswordHash == "" {
		return link, nil
	}
	grant := c.Get(api.AccessGrantHeader)
	if grant == "" {
		return nil, errPasswordRequired
	}
	claims, err := h.Tokens.Parse(grant, utils.TokenGrant)
	if err != nil || claims.Subject != link.ID {
		return nil, errPasswordRequired
	}
	return link, nil
}

// countDownload claims one download against the link's limit.
func (h *SharesHandler) countDownload(link *models.ShareLink) error {
	res := h.DB.Model(&models.ShareLink{}).
		Where("id = ? AND (max_downloads IS NULL OR downloads_used < max_downloads)", link.ID).
		Update("downloads_used", gorm.Expr("downloads_used + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errLinkExhausted
	}
	return nil
}

func (h *SharesHandler) access(c *fiber.Ctx, folder bool) error {
	link, err := h.publicLink(c, folder)
	if err != nil {
		return err
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if link.PasswordHash != "" && !utils.CheckPassword(link.PasswordHash, req.Password) {
		middleware.RecordAuthAttempt("link_password", false)
		return errInvalidPassword
	}
	grant, err := h.Tokens.Grant(link.ID)
	if err != nil {
		return err
	}
	return c.JSON(api.AccessGrant{Grant: grant, ExpiresIn: int(h.Config.JWT.GrantTTL.Seconds())})
}

func (h *SharesHandler) shareAccess(c *fiber.Ctx) error { return h.access(c, false) }

func (h *SharesHandler) publicFolderAccess(c *fiber.Ctx) error { return h.access(c, true) }

func (h *SharesHandler) shareMetadata(c *fiber.Ctx) error {
	link, err := h.unlocked(c, false)
	if err != nil {
		return err
	}
	var file models.File
	if err := h.DB.First(&file, "id = ?", *link.FileID).Error; err != nil {
		return errFileNotFound
	}
	return c.JSON(api.FileMetadata{
		Filename:      file.Filename,
		Size:          file.Size,
		ContentType:   file.ContentType,
		ExpiresAt:     link.ExpiresAt,
		MaxDownloads:  link.MaxDownloads,
		DownloadsUsed: link.DownloadsUsed,
		HasPassword:   link.PasswordHash != "",
	})
}

func (h *SharesHandler) shareDownload(c *fiber.Ctx) error {
	link, err := h.unlocked(c, false)
	if err != nil {
		return err
	}
	var file models.File
	if err := h.DB.First(&file, "id = ?", *link.FileID).Error; err != nil {
		return errFileNotFound
	}
	if err := h.countDownload(link); err != nil {
		return err
	}
	middleware.RecordShareDownload("file")
	return h.sendFile(c, &file)
}

func (h *SharesHandler) publicFolderContents(c *fiber.Ctx) error {
	link, err := h.unlocked(c, true)
	if err != nil {
		return err
	}
	rootID := *link.FolderID
	folderID := rootID
	if id := optionalID(c.Query("folder_id")); id != nil {
		if !h.inSubtree(rootID, *id) {
			return errFolderNotFound
		}
		folderID = *id
	}
	var folder models.Folder
	if err := h.DB.First(&folder, "id = ?", folderID).Error; err != nil {
		return errFolderNotFound
	}
	out, err := h.contents(&folder, rootID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (h *SharesHandler) publicFolderDownload(c *fiber.Ctx) error {
	link, err := h.unlocked(c, true)
	if err != nil {
		return err
	}
	var file models.File
	err = h.DB.First(&file, "id = ? AND owner_id = ?", c.Params("fileID"), link.OwnerID).Error
	if err != nil || file.FolderID == nil || !h.inSubtree(*link.FolderID, *file.FolderID) {
		return errFileNotFound
	}
	if err := h.countDownload(link); err != nil {
		return err
	}
	middleware.RecordShareDownload("folder")
	return h.sendFile(c, &file)
}
