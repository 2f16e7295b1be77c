package pathutil

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/google/uuid"
)

// Lister is the part of the media client path resolution needs.
type Lister interface {
	ListFolders(ctx context.Context) ([]api.Folder, error)
	FolderContents(ctx context.Context, folderID string) (*api.FolderContents, error)
	ListFiles(ctx context.Context, userID, folderID string) ([]api.File, error)
}

// Resolve converts a human-readable folder path (e.g. "/Documents/Reports")
// to the id of its last segment. An empty or "/" path means root ("").
// A UUID is returned as-is.
func Resolve(ctx context.Context, l Lister, p string) (string, error) {
	p = strings.TrimSpace(p)
	if isRoot(p) {
		return "", nil
	}
	if isUUID(p) {
		return p, nil
	}

	currentID := ""
	for _, segment := range strings.Split(strings.Trim(p, "/"), "/") {
		if segment == "" || segment == "." {
			continue
		}
		folders, err := subfolders(ctx, l, currentID)
		if err != nil {
			return "", fmt.Errorf("listing %q: %w", segment, err)
		}

		found := false
		for _, f := range folders {
			if strings.EqualFold(f.Name, segment) {
				currentID = f.ID
				found = true
				break
			}
		}
		if !found {
			if currentID == "" {
				return "", fmt.Errorf("folder not found in root: %s", segment)
			}
			return "", fmt.Errorf("folder not found: %s", segment)
		}
	}
	return currentID, nil
}

// ResolveFile finds the file at p ("/Docs/report.pdf"). A UUID is returned as
// a bare {id} file.
func ResolveFile(ctx context.Context, l Lister, userID, p string) (*api.File, error) {
	p = strings.TrimSpace(p)
	if isUUID(p) {
		return &api.File{ID: p}, nil
	}
	if isRoot(p) {
		return nil, fmt.Errorf("a file path is required")
	}

	clean := path.Clean("/" + p)
	dir, name := path.Split(clean)
	folderID, err := Resolve(ctx, l, dir)
	if err != nil {
		return nil, err
	}

	var files []api.File
	if folderID == "" {
		files, err = l.ListFiles(ctx, userID, "")
	} else {
		var c *api.FolderContents
		c, err = l.FolderContents(ctx, folderID)
		if c != nil {
			files = c.Files
		}
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, f := range files {
		if strings.EqualFold(f.DisplayName(), name) {
			file := f
			return &file, nil
		}
	}
	return nil, fmt.Errorf("file not found: %s", clean)
}

func subfolders(ctx context.Context, l Lister, parentID string) ([]api.Folder, error) {
	if parentID == "" {
		folders, err := l.ListFolders(ctx)
		if err != nil {
			return nil, err
		}
		top := make([]api.Folder, 0, len(folders))
		for _, f := range folders {
			if f.ParentID == nil || *f.ParentID == "" {
				top = append(top, f)
			}
		}
		return top, nil
	}
	c, err := l.FolderContents(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return c.Subfolders, nil
}

func isRoot(p string) bool {
	return p == "" || p == "/" || p == "."
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
