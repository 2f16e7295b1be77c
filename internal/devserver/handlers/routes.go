package handlers

import (
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/gofiber/fiber/v2"
)

// RegisterAuthRoutes mounts the authentication service endpoints.
func RegisterAuthRoutes(app fiber.Router, d Deps, mw *middleware.Auth) {
	authHandler := NewAuthHandler(d)
	usersHandler := NewUsersHandler(d)

	auth := app.Group("/auth")
	auth.Post("/register", authHandler.register)
	auth.Post("/login", authHandler.login)
	auth.Post("/logout", authHandler.logout)
	auth.Post("/refresh", authHandler.refresh)
	auth.Post("/verify-email", authHandler.verifyEmail)
	auth.Post("/forgot-password", authHandler.forgotPassword)
	auth.Post("/reset-password", authHandler.resetPassword)
	auth.Post("/generate-passcode", authHandler.generatePasscode)
	auth.Post("/verify-passcode", authHandler.verifyPasscode)
	auth.Post("/totp/setup", mw.RequireAuth, authHandler.setupTOTP)
	auth.Post("/totp/verify", mw.RequireAuth, authHandler.enableTOTP)
	auth.Get("/oauth/:provider/authorize-url", authHandler.oauthAuthorizeURL)
	auth.Get("/oauth/:provider/consent", authHandler.oauthConsent)
	auth.Post("/oauth/:provider/callback", authHandler.oauthCallback)

	users := app.Group("/users", mw.RequireAuth)
	users.Get("/me", usersHandler.me)
	users.Put("/me", usersHandler.updateMe)
	users.Put("/me/password", usersHandler.changePassword)
	users.Post("/me/2fa/setup", authHandler.setupTOTP)
	users.Post("/me/2fa/enable", authHandler.enableTOTP)
	users.Post("/me/2fa/disable", authHandler.disableTOTP)
	users.Get("/:id", usersHandler.getUser)

	sessions := app.Group("/sessions", mw.RequireAuth)
	sessions.Get("/me", usersHandler.listSessions)
	sessions.Delete("/revoke/all", usersHandler.revokeAllSessions)
	sessions.Delete("/:id", usersHandler.revokeSession)
}

// RegisterMediaRoutes mounts the media service endpoints.
func RegisterMediaRoutes(app fiber.Router, d Deps, mw *middleware.Auth) {
	filesHandler := NewFilesHandler(d)
	sharesHandler := NewSharesHandler(d)

	app.Post("/upload/:userID", mw.RequireAuth, filesHandler.upload)
	app.Get("/download/:id", mw.RequireAuth, filesHandler.download)
	app.Get("/user/:userID/files", mw.RequireAuth, filesHandler.listFiles)
	app.Delete("/files/:id", mw.RequireAuth, filesHandler.deleteFile)
	app.Get("/files/:id/share-links", mw.RequireAuth, sharesHandler.fileShareLinks)

	folders := app.Group("/folders", mw.RequireAuth)
	folders.Get("/", filesHandler.listFolders)
	folders.Post("/", filesHandler.createFolder)
	folders.Get("/:id/contents", filesHandler.folderContents)
	folders.Post("/:id/share", sharesHandler.shareFolder)
	folders.Post("/:id/public-links", sharesHandler.createFolderLink)
	folders.Get("/:id/public-links", sharesHandler.folderLinks)
	folders.Get("/:id/public-links/:linkID", sharesHandler.folderLink)
	folders.Delete("/:id/public-links/:linkID", sharesHandler.deleteFolderLink)

	app.Post("/share/link", mw.RequireAuth, sharesHandler.createShareLink)
	links := app.Group("/share-links", mw.RequireAuth)
	links.Delete("/:id", sharesHandler.deleteShareLink)
	links.Patch("/:id/extend-expiry", sharesHandler.extendExpiry)
	links.Patch("/:id/update-download-limit", sharesHandler.updateDownloadLimit)

	app.Get("/s/:token/metadata", sharesHandler.shareMetadata)
	app.Post("/s/:token/access", sharesHandler.shareAccess)
	app.Get("/s/:token/download", sharesHandler.shareDownload)

	public := app.Group("/public/folders")
	public.Get("/:token/contents", sharesHandler.publicFolderContents)
	public.Post("/:token/access", sharesHandler.publicFolderAccess)
	public.Get("/:token/files/:fileID/download", sharesHandler.publicFolderDownload)
}
