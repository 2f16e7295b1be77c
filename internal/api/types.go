package api

import "time"

// User mirrors the auth service user profile.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	StorageUsed  int64     `json:"storage_used,omitempty"`
	StorageLimit int64     `json:"storage_limit,omitempty"`
	Is2FAEnabled bool      `json:"is_2fa_enabled"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// MinimalUser is the profile used when only the id is known.
func MinimalUser(id string) *User {
	return &User{ID: id}
}

// File mirrors a media service file record. Older endpoints send filename,
// newer ones name.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	FolderID    *string   `json:"folder_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DisplayName returns whichever of name or filename is set.
func (f File) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Filename
}

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Breadcrumb is one ancestor in a folder path, root first.
type Breadcrumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FolderContents is returned by the folder contents endpoints.
type FolderContents struct {
	Folder      *Folder      `json:"folder,omitempty"`
	Subfolders  []Folder     `json:"subfolders"`
	Files       []File       `json:"files"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs"`
}

// ShareLink covers both file share links and folder public links.
type ShareLink struct {
	ID            string     `json:"id,omitempty"`
	LinkID        string     `json:"link_id,omitempty"`
	Token         string     `json:"token,omitempty"`
	ShortCode     string     `json:"short_code,omitempty"`
	URL           string     `json:"url,omitempty"`
	FileID        string     `json:"file_id,omitempty"`
	FolderID      string     `json:"folder_id,omitempty"`
	SharedWith    string     `json:"shared_with,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxDownloads  *int       `json:"max_downloads,omitempty"`
	DownloadsUsed int        `json:"downloads_used"`
	HasPassword   bool       `json:"has_password"`
	Active        *bool      `json:"active,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Identifier returns id, falling back to link_id.
func (l ShareLink) Identifier() string {
	if l.ID != "" {
		return l.ID
	}
	return l.LinkID
}

// Code returns the public token, falling back to short_code.
func (l ShareLink) Code() string {
	if l.Token != "" {
		return l.Token
	}
	return l.ShortCode
}

// IsActive treats a missing active field as active; only an explicit false
// marks a link as revoked.
func (l ShareLink) IsActive() bool {
	return l.Active == nil || *l.Active
}

// LinkOptions are the optional constraints on a new share or public link.
type LinkOptions struct {
	// ExpiresAt is an ISO date (2006-01-02).
	ExpiresAt    string `json:"expires_at,omitempty"`
	Password     string `json:"password,omitempty"`
	MaxDownloads *int   `json:"max_downloads,omitempty"`
}

// ShareLinkRequest is the body of POST /share/link.
type ShareLinkRequest struct {
	FileID string `json:"file_id"`
	Email  string `json:"email,omitempty"`
	LinkOptions
}

// FileMetadata describes the file behind a public share link.
type FileMetadata struct {
	Filename      string     `json:"filename"`
	Size          int64      `json:"size"`
	ContentType   string     `json:"content_type,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxDownloads  *int       `json:"max_downloads,omitempty"`
	DownloadsUsed int        `json:"downloads_used"`
	HasPassword   bool       `json:"has_password"`
}

// AccessGrant is returned after a correct share password; the grant is sent
// back in the X-Access-Grant header.
type AccessGrant struct {
	Grant     string `json:"grant"`
	ExpiresIn int    `json:"expires_in"`
}

// LoginResponse is returned by login, passcode verification and the OAuth
// callback. When TOTPRequired is set no tokens are present.
type LoginResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	TOTPRequired bool   `json:"totp_required,omitempty"`
	Message      string `json:"message,omitempty"`
}

// TokenResponse is returned by POST /auth/refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// TOTPSetup carries a fresh, not yet enabled TOTP secret.
type TOTPSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// DeviceSession is one signed-in device.
type DeviceSession struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Current    bool      `json:"current"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
}

type VersionInfo struct {
	Version string `json:"version"`
}
