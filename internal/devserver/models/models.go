package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BaseModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type User struct {
	BaseModel
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `gorm:"type:text"`
	FullName     string `gorm:"type:varchar(255)"`
	IsVerified   bool   `gorm:"not null;default:false"`
	StorageUsed  int64  `gorm:"not null;default:0"`
	StorageLimit int64  `gorm:"not null;default:0"`

	TOTPEnabled bool   `gorm:"not null;default:false"`
	TOTPSecret  string `gorm:"type:text"`
	// TOTPPending holds a secret issued by setup and not yet confirmed.
	TOTPPending string `gorm:"type:text"`
}

// DeviceSession is one refresh token family. TokenID is the jti of the only
// refresh token currently accepted for it.
type DeviceSession struct {
	BaseModel
	UserID     string    `gorm:"type:varchar(36);not null;index"`
	TokenID    string    `gorm:"type:varchar(36);not null"`
	UserAgent  string    `gorm:"type:text"`
	IPAddress  string    `gorm:"type:varchar(64)"`
	LastSeenAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	RevokedAt  *time.Time
}

type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposeResetPassword TokenPurpose = "reset_password"
	PurposePasscode      TokenPurpose = "passcode"
)

// OneTimeToken backs email verification, password reset and login
// passcodes. Lookup is by Digest; passcodes are bcrypt hashed in Hash.
type OneTimeToken struct {
	BaseModel
	UserID    string       `gorm:"type:varchar(36);not null;index"`
	Purpose   TokenPurpose `gorm:"type:varchar(20);not null;index"`
	Digest    string       `gorm:"type:varchar(64);index"`
	Hash      string       `gorm:"type:text"`
	ExpiresAt time.Time    `gorm:"not null"`
	UsedAt    *time.Time
}

// OAuthGrant tracks one authorization round trip, from the authorize URL
// through consent to the code exchange.
type OAuthGrant struct {
	BaseModel
	Provider    string    `gorm:"type:varchar(50);not null"`
	State       string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	RedirectURI string    `gorm:"type:text;not null"`
	Code        string    `gorm:"type:varchar(64);index"`
	Email       string    `gorm:"type:varchar(255)"`
	ExpiresAt   time.Time `gorm:"not null"`
	UsedAt      *time.Time
}

type Folder struct {
	BaseModel
	OwnerID  string  `gorm:"type:varchar(36);not null;index"`
	Name     string  `gorm:"type:varchar(255);not null"`
	ParentID *string `gorm:"type:varchar(36);index"`
}

type File struct {
	BaseModel
	OwnerID     string  `gorm:"type:varchar(36);not null;index"`
	FolderID    *string `gorm:"type:varchar(36);index"`
	Filename    string  `gorm:"type:varchar(255);not null"`
	Size        int64   `gorm:"not null;default:0"`
	ContentType string  `gorm:"type:varchar(255)"`
	StorageKey  string  `gorm:"type:text;not null"`
}

// ShareLink is a public link to either a file or a folder. Revoking a link
// sets Active to false; rows are never deleted.
type ShareLink struct {
	BaseModel
	OwnerID       string  `gorm:"type:varchar(36);not null;index"`
	Token         string  `gorm:"type:varchar(64);uniqueIndex;not null"`
	FileID        *string `gorm:"type:varchar(36);index"`
	FolderID      *string `gorm:"type:varchar(36);index"`
	SharedWith    string  `gorm:"type:varchar(255)"`
	PasswordHash  string  `gorm:"type:text"`
	ExpiresAt     *time.Time
	MaxDownloads  *int
	DownloadsUsed int  `gorm:"not null;default:0"`
	Active        bool `gorm:"not null;default:true"`
}

func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

func (l *ShareLink) Exhausted() bool {
	return l.MaxDownloads != nil && l.DownloadsUsed >= *l.MaxDownloads
}

// All lists every model for migration.
func All() []any {
	return []any{
		&User{},
		&DeviceSession{},
		&OneTimeToken{},
		&OAuthGrant{},
		&Folder{},
		&File{},
		&ShareLink{},
	}
}
