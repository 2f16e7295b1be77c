package api

import (
	"context"
	"io"
	"net/url"
)

// AccessGrantHeader carries a public-link access grant.
const AccessGrantHeader = "X-Access-Grant"

// Media wraps the media service endpoints.
type Media struct {
	c *Client
}

func (m *Media) url(path string) string { return m.c.mediaURL + path }

func esc(s string) string { return url.PathEscape(s) }

// Upload sends a local file into folderID ("" for root) for userID.
func (m *Media) Upload(ctx context.Context, userID, path, folderID string, progress Progress) (*File, error) {
	fields := map[string]string{}
	if folderID != "" {
		fields["folder_id"] = folderID
	}
	var out File
	if err := m.c.Upload(ctx, m.url("/upload/"+esc(userID)), "file", path, fields, progress, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	return m.c.Download(ctx, m.url("/download/"+esc(fileID)), w)
}

// ListFiles lists a user's files in folderID ("" for root).
func (m *Media) ListFiles(ctx context.Context, userID, folderID string) ([]File, error) {
	var opts []RequestOption
	if folderID != "" {
		opts = append(opts, WithQuery(url.Values{"folder_id": {folderID}}))
	}
	var out []File
	if err := m.c.Get(ctx, m.url("/user/"+esc(userID)+"/files"), &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Media) DeleteFile(ctx context.Context, fileID string) error {
	return m.c.Delete(ctx, m.url("/files/"+esc(fileID)), nil)
}

// ListFolders returns the caller's top-level folders.
func (m *Media) ListFolders(ctx context.Context) ([]Folder, error) {
	var out []Folder
	if err := m.c.Get(ctx, m.url("/folders"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Media) CreateFolder(ctx context.Context, name, parentID string) (*Folder, error) {
	body := map[string]any{"name": name}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var out Folder
	if err := m.c.Post(ctx, m.url("/folders"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) FolderContents(ctx context.Context, folderID string) (*FolderContents, error) {
	var out FolderContents
	if err := m.c.Get(ctx, m.url("/folders/"+esc(folderID)+"/contents"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) ShareFolder(ctx context.Context, folderID, email string) (*MessageResponse, error) {
	var out MessageResponse
	err := m.c.Post(ctx, m.url("/folders/"+esc(folderID)+"/share"), map[string]string{"email": email}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) CreateFolderPublicLink(ctx context.Context, folderID string, opts LinkOptions) (*ShareLink, error) {
	var out ShareLink
	if err := m.c.Post(ctx, m.url("/folders/"+esc(folderID)+"/public-links"), opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) FolderPublicLinks(ctx context.Context, folderID string) ([]ShareLink, error) {
	var out []ShareLink
	if err := m.c.Get(ctx, m.url("/folders/"+esc(folderID)+"/public-links"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Media) FolderPublicLink(ctx context.Context, folderID, linkID string) (*ShareLink, error) {
	var out ShareLink
	if err := m.c.Get(ctx, m.url("/folders/"+esc(folderID)+"/public-links/"+esc(linkID)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) DeleteFolderPublicLink(ctx context.Context, folderID, linkID string) error {
	return m.c.Delete(ctx, m.url("/folders/"+esc(folderID)+"/public-links/"+esc(linkID)), nil)
}

// CreateShareLink creates a file share link; with Email set the backend also
// mails it to the recipient.
func (m *Media) CreateShareLink(ctx context.Context, req ShareLinkRequest) (*ShareLink, error) {
	var out ShareLink
	if err := m.c.Post(ctx, m.url("/share/link"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) FileShareLinks(ctx context.Context, fileID string) ([]ShareLink, error) {
	var out []ShareLink
	if err := m.c.Get(ctx, m.url("/files/"+esc(fileID)+"/share-links"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Media) DeleteShareLink(ctx context.Context, linkID string) error {
	return m.c.Delete(ctx, m.url("/share-links/"+esc(linkID)), nil)
}

// ExtendShareLinkExpiry sets a new ISO expiry date.
func (m *Media) ExtendShareLinkExpiry(ctx context.Context, linkID, expiresAt string) (*ShareLink, error) {
	var out ShareLink
	body := map[string]string{"expires_at": expiresAt}
	if err := m.c.Patch(ctx, m.url("/share-links/"+esc(linkID)+"/extend-expiry"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) UpdateShareLinkDownloadLimit(ctx context.Context, linkID string, maxDownloads int) (*ShareLink, error) {
	var out ShareLink
	body := map[string]int{"max_downloads": maxDownloads}
	if err := m.c.Patch(ctx, m.url("/share-links/"+esc(linkID)+"/update-download-limit"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- public (unauthenticated) access ---

func grantOpts(grant string) []RequestOption {
	opts := []RequestOption{WithoutAuth()}
	if grant != "" {
		opts = append(opts, WithHeader(AccessGrantHeader, grant))
	}
	return opts
}

// PublicFolderContents lists a publicly linked folder, or one of its
// subfolders when folderID is set.
func (m *Media) PublicFolderContents(ctx context.Context, token, folderID, grant string) (*FolderContents, error) {
	opts := grantOpts(grant)
	if folderID != "" {
		opts = append(opts, WithQuery(url.Values{"folder_id": {folderID}}))
	}
	var out FolderContents
	if err := m.c.Get(ctx, m.url("/public/folders/"+esc(token)+"/contents"), &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublicFolderAccess trades a folder link password for an access grant.
func (m *Media) PublicFolderAccess(ctx context.Context, token, password string) (*AccessGrant, error) {
	var out AccessGrant
	err := m.c.Post(ctx, m.url("/public/folders/"+esc(token)+"/access"), map[string]string{"password": password}, &out, WithoutAuth())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) PublicFolderDownload(ctx context.Context, token, fileID, grant string, w io.Writer) (int64, error) {
	return m.c.Download(ctx, m.url("/public/folders/"+esc(token)+"/files/"+esc(fileID)+"/download"), w, grantOpts(grant)...)
}

func (m *Media) ShareMetadata(ctx context.Context, token, grant string) (*FileMetadata, error) {
	var out FileMetadata
	if err := m.c.Get(ctx, m.url("/s/"+esc(token)+"/metadata"), &out, grantOpts(grant)...); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShareAccess trades a share link password for an access grant.
func (m *Media) ShareAccess(ctx context.Context, token, password string) (*AccessGrant, error) {
	var out AccessGrant
	err := m.c.Post(ctx, m.url("/s/"+esc(token)+"/access"), map[string]string{"password": password}, &out, WithoutAuth())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Media) ShareDownload(ctx context.Context, token, grant string, w io.Writer) (int64, error) {
	return m.c.Download(ctx, m.url("/s/"+esc(token)+"/download"), w, grantOpts(grant)...)
}
