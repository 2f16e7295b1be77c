package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/services"
	"github.com/filedeck/filedeck/internal/devserver/storage"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"gorm.io/gorm"
)

// Deps carries what every handler needs. Helpers used by more than one
// handler hang off it.
type Deps struct {
	Config config.Config
	DB     *gorm.DB
	Blobs  storage.Blobs
	Mail   services.Mailer
	Log    *slog.Logger
	Tokens *utils.Tokens
	Now    func() time.Time
}

type AuthHandler struct{ Deps }

func NewAuthHandler(d Deps) *AuthHandler { return &AuthHandler{Deps: d} }

type UsersHandler struct{ Deps }

func NewUsersHandler(d Deps) *UsersHandler { return &UsersHandler{Deps: d} }

type FilesHandler struct{ Deps }

func NewFilesHandler(d Deps) *FilesHandler { return &FilesHandler{Deps: d} }

type SharesHandler struct{ Deps }

func NewSharesHandler(d Deps) *SharesHandler { return &SharesHandler{Deps: d} }

func userJSON(u *models.User) api.User {
	return api.User{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		StorageUsed:  u.StorageUsed,
		StorageLimit: u.StorageLimit,
		Is2FAEnabled: u.TOTPEnabled,
		IsVerified:   u.IsVerified,
		CreatedAt:    u.CreatedAt,
	}
}

func fileJSON(f *models.File) api.File {
	return api.File{
		ID:          f.ID,
		Name:        f.Filename,
		Filename:    f.Filename,
		Size:        f.Size,
		ContentType: f.ContentType,
		FolderID:    f.FolderID,
		CreatedAt:   f.CreatedAt,
	}
}

func folderJSON(f *models.Folder) api.Folder {
	return api.Folder{ID: f.ID, Name: f.Name, ParentID: f.ParentID, CreatedAt: f.CreatedAt}
}

func (h *Deps) linkJSON(l *models.ShareLink) api.ShareLink {
	active := l.Active
	out := api.ShareLink{
		ID:            l.ID,
		Token:         l.Token,
		SharedWith:    l.SharedWith,
		ExpiresAt:     l.ExpiresAt,
		MaxDownloads:  l.MaxDownloads,
		DownloadsUsed: l.DownloadsUsed,
		HasPassword:   l.PasswordHash != "",
		Active:        &active,
		CreatedAt:     l.CreatedAt,
	}
	base := strings.TrimRight(h.Config.PublicURL, "/")
	if l.FileID != nil {
		out.FileID = *l.FileID
		out.URL = base + "/s/" + l.Token
	}
	if l.FolderID != nil {
		out.FolderID = *l.FolderID
		out.URL = base + "/public/folders/" + l.Token
	}
	return out
}
