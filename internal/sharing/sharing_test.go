package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/tokenstore"
)

func boolPtr(b bool) *bool { return &b }

func newMedia(t *testing.T, h http.HandlerFunc) *api.Media {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client := api.New(api.Config{
		AuthURL:  srv.URL,
		MediaURL: srv.URL,
		Store:    tokenstore.NewMemory(tokenstore.Session{AccessToken: "tok"}),
	})
	return client.Media
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFilterActive(t *testing.T) {
	links := []api.ShareLink{
		{ID: "1"},
		{ID: "2", Active: boolPtr(false)},
		{ID: "3", Active: boolPtr(true)},
		{ID: "4", Active: boolPtr(false)},
	}
	got := FilterActive(links)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("expected links 1 and 3, got %+v", got)
	}
}

func TestModal_Validation(t *testing.T) {
	var calls atomic.Int32
	media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	m := NewModal(media, Target{Kind: File, ID: "f1"}, "https://app.example.com")
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"bad email", func() error { _, err := m.ShareWithEmail(ctx, Form{Email: "user example.com"}); return err }},
		{"impossible date", func() error { _, err := m.CreateLink(ctx, Form{ExpiresAt: "25/02/30"}); return err }},
		{"zero downloads", func() error { _, err := m.CreateLink(ctx, Form{MaxDownloads: "0"}); return err }},
		{"empty extension", func() error { _, err := m.ExtendExpiry(ctx, "l1", ""); return err }},
		{"empty limit", func() error { _, err := m.UpdateDownloadLimit(ctx, "l1", ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err == nil {
				t.Fatal("expected validation error")
			}
			s := m.Snapshot()
			if s.Phase != Editing || !s.Message.Error || s.Message.Text == "" {
				t.Errorf("expected editing with error message, got %+v", s)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("expected no network calls, got %d", calls.Load())
	}
}

func TestModal_CreateFileLink(t *testing.T) {
	media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/share/link" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req api.ShareLinkRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.FileID != "f1" || req.ExpiresAt != "2025-02-28" || req.MaxDownloads == nil || *req.MaxDownloads != 3 || req.Password != "pw" {
			t.Errorf("unexpected request body %+v", req)
		}
		writeJSON(w, 201, api.ShareLink{ID: "l1", Token: "abc"})
	})
	m := NewModal(media, Target{Kind: File, ID: "f1"}, "https://app.example.com/")

	link, err := m.CreateLink(context.Background(), Form{ExpiresAt: "25/02/28", Password: "pw", MaxDownloads: "3"})
	if err != nil {
		t.Fatalf("CreateLink() returned error: %v", err)
	}
	if link.URL != "https://app.example.com/s/abc" {
		t.Errorf("expected built URL, got %s", link.URL)
	}
	s := m.Snapshot()
	if s.Phase != Created || s.Message.Error || len(s.Links) != 1 {
		t.Errorf("unexpected snapshot %+v", s)
	}

	url, ok := m.Reveal()
	if !ok || url != "https://app.example.com/s/abc" {
		t.Errorf("expected first reveal to return the URL, got %q %v", url, ok)
	}
	if _, ok := m.Reveal(); ok {
		t.Error("expected second reveal to return nothing")
	}
}

func TestModal_FolderFlows(t *testing.T) {
	media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /folders/d1/share":
			writeJSON(w, 200, api.MessageResponse{Message: "Folder shared"})
		case "POST /folders/d1/public-links":
			writeJSON(w, 201, api.ShareLink{LinkID: "p1", ShortCode: "xyz"})
		case "GET /folders/d1/public-links":
			writeJSON(w, 200, []api.ShareLink{
				{LinkID: "p1", ShortCode: "xyz"},
				{LinkID: "p0", ShortCode: "old", Active: boolPtr(false)},
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	m := NewModal(media, Target{Kind: Folder, ID: "d1"}, "http://localhost:5173")
	ctx := context.Background()

	if _, err := m.ShareWithEmail(ctx, Form{Email: "b@example.com"}); err != nil {
		t.Fatalf("ShareWithEmail() returned error: %v", err)
	}
	if s := m.Snapshot(); s.Message.Text != "Folder shared" {
		t.Errorf("expected backend message, got %q", s.Message.Text)
	}

	link, err := m.CreateLink(ctx, Form{})
	if err != nil {
		t.Fatalf("CreateLink() returned error: %v", err)
	}
	if link.URL != "http://localhost:5173/public/folders/xyz" {
		t.Errorf("unexpected folder URL %s", link.URL)
	}

	links, err := m.Links(ctx)
	if err != nil {
		t.Fatalf("Links() returned error: %v", err)
	}
	if len(links) != 1 || links[0].Identifier() != "p1" {
		t.Errorf("expected only the active link, got %+v", links)
	}

	if _, err := m.ExtendExpiry(ctx, "p1", "30/01/01"); err != ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestModal_DeleteLink(t *testing.T) {
	t.Run("removes locally without refetching", func(t *testing.T) {
		var lists atomic.Int32
		media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				lists.Add(1)
				writeJSON(w, 200, []api.ShareLink{{ID: "l1"}, {ID: "l2"}})
			case http.MethodDelete:
				if r.URL.Path != "/share-links/l1" {
					t.Errorf("unexpected delete path %s", r.URL.Path)
				}
				w.WriteHeader(http.StatusNoContent)
			}
		})
		m := NewModal(media, Target{Kind: File, ID: "f1"}, "")
		if _, err := m.Links(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := m.DeleteLink(context.Background(), "l1"); err != nil {
			t.Fatalf("DeleteLink() returned error: %v", err)
		}
		s := m.Snapshot()
		if len(s.Links) != 1 || s.Links[0].ID != "l2" {
			t.Errorf("expected only l2 left, got %+v", s.Links)
		}
		if lists.Load() != 1 {
			t.Errorf("expected a single list fetch, got %d", lists.Load())
		}
	})

	t.Run("restores the link when the backend refuses", func(t *testing.T) {
		media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				writeJSON(w, 200, []api.ShareLink{{ID: "l1"}})
				return
			}
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"detail":"Not your link"}`)
		})
		m := NewModal(media, Target{Kind: File, ID: "f1"}, "")
		if _, err := m.Links(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := m.DeleteLink(context.Background(), "l1"); err == nil {
			t.Fatal("expected error")
		}
		s := m.Snapshot()
		if len(s.Links) != 1 {
			t.Errorf("expected link restored, got %+v", s.Links)
		}
		if !s.Message.Error || s.Message.Text != "You do not have access to this item." {
			t.Errorf("unexpected message %+v", s.Message)
		}
	})
}

func TestModal_DeleteLinkKeepsConcurrentChanges(t *testing.T) {
	var m *Modal
	media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /files/f1/share-links":
			writeJSON(w, 200, []api.ShareLink{{ID: "l1"}, {ID: "l2"}})
		case "POST /share/link":
			writeJSON(w, 201, api.ShareLink{ID: "l3", Token: "new"})
		case "DELETE /share-links/l1":
			// A link created while the delete is in flight must survive the
			// rollback.
			if _, err := m.CreateLink(r.Context(), Form{}); err != nil {
				t.Errorf("CreateLink() returned error: %v", err)
			}
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	m = NewModal(media, Target{Kind: File, ID: "f1"}, "")
	if _, err := m.Links(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteLink(context.Background(), "l1"); err == nil {
		t.Fatal("expected error")
	}

	var ids []string
	for _, l := range m.Snapshot().Links {
		ids = append(ids, l.ID)
	}
	if len(ids) != 3 || ids[0] != "l1" || ids[1] != "l3" || ids[2] != "l2" {
		t.Errorf("expected [l1 l3 l2], got %v", ids)
	}
}

func TestModal_Link(t *testing.T) {
	t.Run("folder link comes from its own endpoint", func(t *testing.T) {
		media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/folders/d1/public-links/p1" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			writeJSON(w, 200, api.ShareLink{LinkID: "p1", ShortCode: "xyz"})
		})
		m := NewModal(media, Target{Kind: Folder, ID: "d1"}, "http://localhost:5173")
		link, err := m.Link(context.Background(), "p1")
		if err != nil {
			t.Fatalf("Link() returned error: %v", err)
		}
		if link.URL != "http://localhost:5173/public/folders/xyz" {
			t.Errorf("unexpected URL %s", link.URL)
		}
	})

	t.Run("file link is looked up in the list", func(t *testing.T) {
		media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, []api.ShareLink{{ID: "l1", Token: "a"}, {ID: "l2", Token: "b"}})
		})
		m := NewModal(media, Target{Kind: File, ID: "f1"}, "https://app.example.com")
		link, err := m.Link(context.Background(), "l2")
		if err != nil {
			t.Fatalf("Link() returned error: %v", err)
		}
		if link.URL != "https://app.example.com/s/b" {
			t.Errorf("unexpected URL %s", link.URL)
		}
		if _, err := m.Link(context.Background(), "missing"); !errors.Is(err, ErrLinkNotFound) {
			t.Errorf("expected ErrLinkNotFound, got %v", err)
		}
	})
}

func TestModal_UpdateFileLink(t *testing.T) {
	media := newMedia(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /files/f1/share-links":
			writeJSON(w, 200, []api.ShareLink{{ID: "l1", Token: "t1"}})
		case "PATCH /share-links/l1/extend-expiry":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["expires_at"] != "2030-01-31" {
				t.Errorf("expected ISO date, got %q", body["expires_at"])
			}
			writeJSON(w, 200, api.ShareLink{ID: "l1", Token: "t1"})
		case "PATCH /share-links/l1/update-download-limit":
			var body map[string]int
			_ = json.NewDecoder(r.Body).Decode(&body)
			limit := body["max_downloads"]
			writeJSON(w, 200, api.ShareLink{ID: "l1", Token: "t1", MaxDownloads: &limit})
		default:
			w.WriteHeader(http.StatusGone)
			_, _ = io.WriteString(w, `{"detail":"Link expired"}`)
		}
	})
	m := NewModal(media, Target{Kind: File, ID: "f1"}, "https://x.test")
	ctx := context.Background()
	if _, err := m.Links(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := m.ExtendExpiry(ctx, "l1", "2030/01/31"); err != nil {
		t.Fatalf("ExtendExpiry() returned error: %v", err)
	}
	if _, err := m.UpdateDownloadLimit(ctx, "l1", "10"); err != nil {
		t.Fatalf("UpdateDownloadLimit() returned error: %v", err)
	}
	s := m.Snapshot()
	if s.Links[0].MaxDownloads == nil || *s.Links[0].MaxDownloads != 10 {
		t.Errorf("expected local list updated, got %+v", s.Links[0])
	}
	if s.Links[0].URL != "https://x.test/s/t1" {
		t.Errorf("expected URL kept, got %s", s.Links[0].URL)
	}

	if _, err := m.ExtendExpiry(ctx, "gone", "30/01/01"); err == nil {
		t.Fatal("expected error")
	}
	if s := m.Snapshot(); s.Phase != Failed || s.Message.Text != "This link has expired." {
		t.Errorf("unexpected failure snapshot %+v", s)
	}
}
