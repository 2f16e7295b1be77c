// Package browser navigates folders: the signed-in user's own tree and the
// password-aware public views behind share links.
package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/filedeck/filedeck/internal/api"
)

// Browser walks the signed-in user's folders. Every navigation re-fetches.
type Browser struct {
	media  *api.Media
	userID string

	mu       sync.Mutex
	folderID string
	contents *api.FolderContents
}

func New(media *api.Media, userID string) *Browser {
	return &Browser{media: media, userID: userID}
}

// Open lists folderID, or the root when folderID is empty.
func (b *Browser) Open(ctx context.Context, folderID string) (*api.FolderContents, error) {
	var (
		contents *api.FolderContents
		err      error
	)
	if folderID == "" {
		contents, err = b.root(ctx)
	} else {
		contents, err = b.media.FolderContents(ctx, folderID)
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.folderID = folderID
	b.contents = contents
	b.mu.Unlock()
	return contents, nil
}

func (b *Browser) root(ctx context.Context) (*api.FolderContents, error) {
	folders, err := b.media.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	files, err := b.media.ListFiles(ctx, b.userID, "")
	if err != nil {
		return nil, err
	}
	return &api.FolderContents{Subfolders: rootFolders(folders), Files: files}, nil
}

// rootFolders keeps folders without a parent. Some backends list the whole
// tree on GET /folders.
func rootFolders(folders []api.Folder) []api.Folder {
	out := make([]api.Folder, 0, len(folders))
	for _, f := range folders {
		if f.ParentID == nil || *f.ParentID == "" {
			out = append(out, f)
		}
	}
	return out
}

// Refresh re-fetches the current folder.
func (b *Browser) Refresh(ctx context.Context) (*api.FolderContents, error) {
	return b.Open(ctx, b.Current())
}

// Up opens the parent of the current folder. At the root it re-lists the root.
func (b *Browser) Up(ctx context.Context) (*api.FolderContents, error) {
	b.mu.Lock()
	parent := parentOf(b.folderID, b.contents)
	b.mu.Unlock()
	return b.Open(ctx, parent)
}

func parentOf(folderID string, c *api.FolderContents) string {
	if folderID == "" || c == nil {
		return ""
	}
	if c.Folder != nil && c.Folder.ParentID != nil {
		return *c.Folder.ParentID
	}
	crumbs := c.Breadcrumbs
	if n := len(crumbs); n >= 2 && crumbs[n-1].ID == folderID {
		return crumbs[n-2].ID
	}
	return ""
}

// Current returns the open folder id, "" for the root.
func (b *Browser) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.folderID
}

// Contents returns the last listing.
func (b *Browser) Contents() *api.FolderContents {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contents
}

// Path renders the breadcrumbs of the open folder as /A/B.
func (b *Browser) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.contents == nil {
		return "/"
	}
	return Path(b.contents.Breadcrumbs)
}

// Path joins breadcrumb names, root first.
func Path(crumbs []api.Breadcrumb) string {
	if len(crumbs) == 0 {
		return "/"
	}
	names := make([]string, len(crumbs))
	for i, c := range crumbs {
		names[i] = c.Name
	}
	return "/" + strings.Join(names, "/")
}
