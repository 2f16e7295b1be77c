package browser

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/filedeck/filedeck/internal/api"
)

// Status is the public view state.
type Status int

const (
	Loading Status = iota
	NeedsPassword
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case NeedsPassword:
		return "needs_password"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrPasswordRequired is returned when a public resource asks for a password.
var ErrPasswordRequired = errors.New("a password is required to open this link")

// gate is the state shared by the public folder and file views. A password
// challenge never populates err; a wrong password goes to passwordErr.
type gate struct {
	mu          sync.Mutex
	status      Status
	err         string
	passwordErr string
	grant       string
}

func (g *gate) loading() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = Loading
	g.err = ""
	return g.grant
}

// settle maps the outcome of a fetch onto the state machine.
func (g *gate) settle(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case err == nil:
		g.status = Loaded
		g.passwordErr = ""
		return nil
	case api.IsPasswordRequired(err):
		g.status = NeedsPassword
		g.grant = ""
		return ErrPasswordRequired
	default:
		g.status = Failed
		g.err = api.UserMessage(err, "Could not load this link")
		return err
	}
}

// unlock trades password for a grant. On a rejected password the state goes
// back to NeedsPassword with passwordErr set.
func (g *gate) unlock(password string, access func(string) (*api.AccessGrant, error)) error {
	if strings.TrimSpace(password) == "" {
		g.mu.Lock()
		g.status = NeedsPassword
		g.passwordErr = "Password is required."
		g.mu.Unlock()
		return ErrPasswordRequired
	}
	g.loading()
	grant, err := access(password)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		if api.IsPasswordRequired(err) {
			g.status = NeedsPassword
			g.passwordErr = api.UserMessage(err, "Incorrect password.")
			return err
		}
		g.status = Failed
		g.err = api.UserMessage(err, "Could not unlock this link")
		return err
	}
	g.grant = grant.Grant
	g.passwordErr = ""
	return nil
}

func (g *gate) currentGrant() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grant
}

// PublicState is a copy of a public view's state.
type PublicState struct {
	Status      Status
	Err         string
	PasswordErr string
}

func (g *gate) state() PublicState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return PublicState{Status: g.status, Err: g.err, PasswordErr: g.passwordErr}
}

// PublicFolder browses a folder behind a public link.
type PublicFolder struct {
	media *api.Media
	token string
	gate  gate

	mu       sync.Mutex
	folderID string
	contents *api.FolderContents
}

func NewPublicFolder(media *api.Media, token string) *PublicFolder {
	return &PublicFolder{media: media, token: token}
}

// Load lists the shared folder, or one of its subfolders.
func (p *PublicFolder) Load(ctx context.Context, folderID string) (*api.FolderContents, error) {
	p.mu.Lock()
	p.folderID = folderID
	p.mu.Unlock()
	grant := p.gate.loading()
	contents, err := p.media.PublicFolderContents(ctx, p.token, folderID, grant)
	if err := p.gate.settle(err); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.contents = contents
	p.mu.Unlock()
	return contents, nil
}

// SubmitPassword unlocks the link and reloads the folder that asked for it.
func (p *PublicFolder) SubmitPassword(ctx context.Context, password string) (*api.FolderContents, error) {
	err := p.gate.unlock(password, func(pw string) (*api.AccessGrant, error) {
		return p.media.PublicFolderAccess(ctx, p.token, pw)
	})
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	folderID := p.folderID
	p.mu.Unlock()
	return p.Load(ctx, folderID)
}

// Download streams a file from the shared folder.
func (p *PublicFolder) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	return p.media.PublicFolderDownload(ctx, p.token, fileID, p.gate.currentGrant(), w)
}

func (p *PublicFolder) State() PublicState { return p.gate.state() }

func (p *PublicFolder) Contents() *api.FolderContents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contents
}

// PublicFile views a single shared file.
type PublicFile struct {
	media *api.Media
	token string
	gate  gate

	mu       sync.Mutex
	metadata *api.FileMetadata
}

func NewPublicFile(media *api.Media, token string) *PublicFile {
	return &PublicFile{media: media, token: token}
}

func (p *PublicFile) Load(ctx context.Context) (*api.FileMetadata, error) {
	grant := p.gate.loading()
	md, err := p.media.ShareMetadata(ctx, p.token, grant)
	if err := p.gate.settle(err); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.metadata = md
	p.mu.Unlock()
	return md, nil
}

func (p *PublicFile) SubmitPassword(ctx context.Context, password string) (*api.FileMetadata, error) {
	err := p.gate.unlock(password, func(pw string) (*api.AccessGrant, error) {
		return p.media.ShareAccess(ctx, p.token, pw)
	})
	if err != nil {
		return nil, err
	}
	return p.Load(ctx)
}

func (p *PublicFile) Download(ctx context.Context, w io.Writer) (int64, error) {
	return p.media.ShareDownload(ctx, p.token, p.gate.currentGrant(), w)
}

func (p *PublicFile) State() PublicState { return p.gate.state() }

func (p *PublicFile) Metadata() *api.FileMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metadata
}
