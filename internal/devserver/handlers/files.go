package handlers

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxFolderDepth bounds parent walks so a corrupt parent cycle cannot spin.
const maxFolderDepth = 64

var (
	errFolderNotFound = fiber.NewError(fiber.StatusNotFound, "Folder not found")
	errFileNotFound   = fiber.NewError(fiber.StatusNotFound, "File not found")
)

func optionalID(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (h *Deps) ownedFolder(ownerID, id string) (*models.Folder, error) {
	var folder models.Folder
	err := h.DB.First(&folder, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (h *Deps) ownedFile(ownerID, id string) (*models.File, error) {
	var file models.File
	err := h.DB.First(&file, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (h *FilesHandler) upload(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if c.Params("userID") != user.ID {
		return utils.Detail(c, fiber.StatusForbidden, "Cannot upload for another user")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "file is required")
	}
	folderID := optionalID(c.FormValue("folder_id"))
	if folderID != nil {
		if _, err := h.ownedFolder(user.ID, *folderID); err != nil {
			return err
		}
	}
	if user.StorageLimit > 0 && user.StorageUsed+fh.Size > user.StorageLimit {
		return utils.Detail(c, fiber.StatusRequestEntityTooLarge, "Storage limit exceeded")
	}

	name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid filename")
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			contentType = byExt
		} else {
			contentType = "application/octet-stream"
		}
	}

	file := models.File{
		OwnerID:     user.ID,
		FolderID:    folderID,
		Filename:    name,
		Size:        fh.Size,
		ContentType: contentType,
	}
	file.ID = uuid.NewString()
	file.StorageKey = user.ID + "/" + file.ID

	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	if err := h.Blobs.Put(c.UserContext(), file.StorageKey, src, fh.Size, contentType); err != nil {
		return err
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("storage_used", gorm.Expr("storage_used + ?", file.Size)).Error
	})
	if err != nil {
		_ = h.Blobs.Delete(c.UserContext(), file.StorageKey)
		return err
	}
	middleware.RecordUpload(file.Size)
	return c.Status(fiber.StatusCreated).JSON(fileJSON(&file))
}

// sendFile streams a stored blob as an attachment.
func (h *Deps) sendFile(c *fiber.Ctx, file *models.File) error {
	rc, size, err := h.Blobs.Get(c.UserContext(), file.StorageKey)
	if err != nil {
		h.Log.Error("blob_read_failed", "file_id", file.ID, "error", err)
		return utils.Detail(c, fiber.StatusNotFound, "File content not found")
	}
	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	return c.SendStream(rc, int(size))
}

func (h *FilesHandler) download(c *fiber.Ctx) error {
	file, err := h.ownedFile(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	return h.sendFile(c, file)
}

func (h *FilesHandler) listFiles(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if c.Params("userID") != user.ID {
		return utils.Detail(c, fiber.StatusForbidden, "Not allowed to list these files")
	}
	q := h.DB.Where("owner_id = ?", user.ID)
	if folderID := optionalID(c.Query("folder_id")); folderID != nil {
		if _, err := h.ownedFolder(user.ID, *folderID); err != nil {
			return err
		}
		q = q.Where("folder_id = ?", *folderID)
	} else {
		q = q.Where("folder_id IS NULL")
	}
	var files []models.File
	if err := q.Order("filename").Find(&files).Error; err != nil {
		return err
	}
	return c.JSON(filesJSON(files))
}

func filesJSON(files []models.File) []api.File {
	out := make([]api.File, 0, len(files))
	for i := range files {
		out = append(out, fileJSON(&files[i]))
	}
	return out
}

func foldersJSON(folders []models.Folder) []api.Folder {
	out := make([]api.Folder, 0, len(folders))
	for i := range folders {
		out = append(out, folderJSON(&folders[i]))
	}
	return out
}

func (h *FilesHandler) deleteFile(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	file, err := h.ownedFile(user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(file).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ShareLink{}).Where("file_id = ?", file.ID).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("storage_used", gorm.Expr("CASE WHEN storage_used > ? THEN storage_used - ? ELSE 0 END", file.Size, file.Size)).Error
	})
	if err != nil {
		return err
	}
	if err := h.Blobs.Delete(c.UserContext(), file.StorageKey); err != nil {
		h.Log.Warn("blob_delete_failed", "file_id", file.ID, "error", err)
	}
	return utils.Message(c, fiber.StatusOK, "File deleted")
}

// --- folders ---

func (h *FilesHandler) listFolders(c *fiber.Ctx) error {
	var folders []models.Folder
	if err := h.DB.Where("owner_id = ?", middleware.CurrentUser(c).ID).Order("name").Find(&folders).Error; err != nil {
		return err
	}
	return c.JSON(foldersJSON(folders))
}

func (h *FilesHandler) createFolder(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	var req struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parent_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "" || name == "." || name == "..":
		return utils.Detail(c, fiber.StatusBadRequest, "Folder name is required")
	case strings.Contains(name, "/"):
		return utils.Detail(c, fiber.StatusBadRequest, "Folder name cannot contain '/'")
	}

	parentID := req.ParentID
	if parentID != nil {
		parentID = optionalID(*parentID)
	}
	q := h.DB.Model(&models.Folder{}).Where("owner_id = ? AND name = ?", user.ID, name)
	if parentID != nil {
		if _, err := h.ownedFolder(user.ID, *parentID); err != nil {
			return err
		}
		q = q.Where("parent_id = ?", *parentID)
	} else {
		q = q.Where("parent_id IS NULL")
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.Detail(c, fiber.StatusConflict, "A folder with that name already exists")
	}

	folder := models.Folder{OwnerID: user.ID, Name: name, ParentID: parentID}
	if err := h.DB.Create(&folder).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(folderJSON(&folder))
}

// breadcrumbs lists folder's ancestors root first, ending with folder. The
// walk stops at stopAt when set, so public views never see above the shared
// folder.
func (h *Deps) breadcrumbs(folder *models.Folder, stopAt string) ([]api.Breadcrumb, error) {
	crumbs := []api.Breadcrumb{{ID: folder.ID, Name: folder.Name}}
	cur := folder
	for depth := 0; cur.ParentID != nil && cur.ID != stopAt && depth < maxFolderDepth; depth++ {
		var parent models.Folder
		if err := h.DB.First(&parent, "id = ?", *cur.ParentID).Error; err != nil {
			return nil, err
		}
		crumbs = append(crumbs, api.Breadcrumb{ID: parent.ID, Name: parent.Name})
		cur = &parent
	}
	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	return crumbs, nil
}

// contents assembles a folder listing. stopAt bounds the breadcrumbs.
func (h *Deps) contents(folder *models.Folder, stopAt string) (*api.FolderContents, error) {
	var subfolders []models.Folder
	if err := h.DB.Where("parent_id = ?", folder.ID).Order("name").Find(&subfolders).Error; err != nil {
		return nil, err
	}
	var files []models.File
	if err := h.DB.Where("folder_id = ?", folder.ID).Order("filename").Find(&files).Error; err != nil {
		return nil, err
	}
	crumbs, err := h.breadcrumbs(folder, stopAt)
	if err != nil {
		return nil, err
	}
	f := folderJSON(folder)
	return &api.FolderContents{
		Folder:      &f,
		Subfolders:  foldersJSON(subfolders),
		Files:       filesJSON(files),
		Breadcrumbs: crumbs,
	}, nil
}

func (h *FilesHandler) folderContents(c *fiber.Ctx) error {
	folder, err := h.ownedFolder(middleware.CurrentUser(c).ID, c.Params("id"))
	if err != nil {
		return err
	}
	out, err := h.contents(folder, "")
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// inSubtree reports whether folderID is rootID or one of its descendants.
func (h *Deps) inSubtree(rootID, folderID string) bool {
	id := folderID
	for depth := 0; depth < maxFolderDepth; depth++ {
		if id == rootID {
			return true
		}
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ?", id).Error; err != nil || folder.ParentID == nil {
			return false
		}
		id = *folder.ParentID
	}
	return false
}
