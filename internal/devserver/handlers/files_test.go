package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/models"
)

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading body: %v", err)
	}
	return string(data)
}

func createFolder(t *testing.T, env *testEnv, token, name string, parentID *string) api.Folder {
	t.Helper()
	resp := performRequest(t, env.media, http.MethodPost, "/folders/",
		map[string]any{"name": name, "parent_id": parentID}, authHeaders(token))
	expectStatus(t, resp, http.StatusCreated)
	return decode[api.Folder](t, resp)
}

func createLink(t *testing.T, env *testEnv, token string, req api.ShareLinkRequest) api.ShareLink {
	t.Helper()
	resp := performRequest(t, env.media, http.MethodPost, "/share/link", req, authHeaders(token))
	expectStatus(t, resp, http.StatusCreated)
	return decode[api.ShareLink](t, resp)
}

func TestUploadDownloadAndList(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")

	resp := uploadFile(t, env, login.AccessToken, user.ID, "notes.txt", "hello world", "")
	expectStatus(t, resp, http.StatusCreated)
	file := decode[api.File](t, resp)
	if file.Size != int64(len("hello world")) {
		t.Errorf("expected size %d, got %d", len("hello world"), file.Size)
	}
	if !strings.HasPrefix(file.ContentType, "text/plain") {
		t.Errorf("expected text/plain content type, got %q", file.ContentType)
	}

	resp = performRequest(t, env.media, http.MethodGet, "/download/"+file.ID, nil, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "notes.txt") {
		t.Errorf("expected attachment filename, got %q", resp.Header.Get("Content-Disposition"))
	}
	if body := readBody(t, resp); body != "hello world" {
		t.Errorf("expected file content, got %q", body)
	}

	resp = performRequest(t, env.media, http.MethodGet, "/user/"+user.ID+"/files", nil, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusOK)
	if files := decode[[]api.File](t, resp); len(files) != 1 || files[0].ID != file.ID {
		t.Errorf("expected the uploaded file at the root, got %+v", files)
	}

	var stored models.User
	env.db.First(&stored, "id = ?", user.ID)
	if stored.StorageUsed != file.Size {
		t.Errorf("expected storage_used %d, got %d", file.Size, stored.StorageUsed)
	}
}

func TestUploadForbiddenAndQuota(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	other := createTestUser(t, env, "other@example.com", "password123")

	resp := uploadFile(t, env, login.AccessToken, other.ID, "a.txt", "x", "")
	expectStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.media, http.MethodGet, "/user/"+other.ID+"/files", nil, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusForbidden)

	env.db.Model(&models.User{}).Where("id = ?", user.ID).Update("storage_limit", 4)
	resp = uploadFile(t, env, login.AccessToken, user.ID, "big.txt", "too large", "")
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)
}

func TestDownloadOtherUsersFile(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerLogin := loginAs(t, env, "owner@example.com")
	_, otherLogin := loginAs(t, env, "other@example.com")

	file := decode[api.File](t, uploadFile(t, env, ownerLogin.AccessToken, owner.ID, "a.txt", "secret", ""))
	resp := performRequest(t, env.media, http.MethodGet, "/download/"+file.ID, nil, authHeaders(otherLogin.AccessToken))
	expectStatus(t, resp, http.StatusNotFound)
}

func TestDeleteFileDeactivatesLinks(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	file := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "a.txt", "abc", ""))
	link := createLink(t, env, login.AccessToken, api.ShareLinkRequest{FileID: file.ID})

	resp := performRequest(t, env.media, http.MethodDelete, "/files/"+file.ID, nil, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/metadata", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)

	var stored models.User
	env.db.First(&stored, "id = ?", user.ID)
	if stored.StorageUsed != 0 {
		t.Errorf("expected storage_used 0 after delete, got %d", stored.StorageUsed)
	}
}

func TestFoldersAndBreadcrumbs(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	headers := authHeaders(login.AccessToken)

	docs := createFolder(t, env, login.AccessToken, "docs", nil)
	work := createFolder(t, env, login.AccessToken, "work", &docs.ID)
	uploadFile(t, env, login.AccessToken, user.ID, "plan.txt", "plan", work.ID)

	resp := performRequest(t, env.media, http.MethodPost, "/folders/", map[string]any{"name": "work", "parent_id": docs.ID}, headers)
	expectStatus(t, resp, http.StatusConflict)
	resp = performRequest(t, env.media, http.MethodPost, "/folders/", map[string]any{"name": "a/b"}, headers)
	expectStatus(t, resp, http.StatusBadRequest)
	resp = performRequest(t, env.media, http.MethodPost, "/folders/", map[string]any{"name": "  "}, headers)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = performRequest(t, env.media, http.MethodGet, "/folders/"+docs.ID+"/contents", nil, headers)
	expectStatus(t, resp, http.StatusOK)
	top := decode[api.FolderContents](t, resp)
	if len(top.Subfolders) != 1 || top.Subfolders[0].ID != work.ID {
		t.Errorf("expected work as only subfolder, got %+v", top.Subfolders)
	}
	if len(top.Files) != 0 {
		t.Errorf("expected no files in docs, got %d", len(top.Files))
	}

	resp = performRequest(t, env.media, http.MethodGet, "/folders/"+work.ID+"/contents", nil, headers)
	inner := decode[api.FolderContents](t, resp)
	if len(inner.Files) != 1 || inner.Files[0].Name != "plan.txt" {
		t.Errorf("expected plan.txt, got %+v", inner.Files)
	}
	if len(inner.Breadcrumbs) != 2 || inner.Breadcrumbs[0].ID != docs.ID || inner.Breadcrumbs[1].ID != work.ID {
		t.Errorf("expected breadcrumbs docs > work, got %+v", inner.Breadcrumbs)
	}

	resp = performRequest(t, env.media, http.MethodGet, "/user/"+user.ID+"/files?folder_id="+work.ID, nil, headers)
	if files := decode[[]api.File](t, resp); len(files) != 1 {
		t.Errorf("expected 1 file in work, got %d", len(files))
	}

	resp = performRequest(t, env.media, http.MethodGet, "/folders/", nil, headers)
	if folders := decode[[]api.Folder](t, resp); len(folders) != 2 {
		t.Errorf("expected 2 folders, got %d", len(folders))
	}

	_, otherLogin := loginAs(t, env, "other@example.com")
	resp = performRequest(t, env.media, http.MethodGet, "/folders/"+docs.ID+"/contents", nil, authHeaders(otherLogin.AccessToken))
	expectStatus(t, resp, http.StatusNotFound)
}

func TestShareLinkLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	headers := authHeaders(login.AccessToken)
	file := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "a.txt", "abc", ""))

	resp := performRequest(t, env.media, http.MethodPost, "/share/link",
		api.ShareLinkRequest{FileID: file.ID, LinkOptions: api.LinkOptions{ExpiresAt: "2020-01-01"}}, headers)
	expectStatus(t, resp, http.StatusBadRequest)
	if got := detailOf(t, resp); got != "expires_at must be in the future" {
		t.Errorf("expected past expiry rejection, got %q", got)
	}

	zero := 0
	resp = performRequest(t, env.media, http.MethodPost, "/share/link",
		api.ShareLinkRequest{FileID: file.ID, LinkOptions: api.LinkOptions{MaxDownloads: &zero}}, headers)
	expectStatus(t, resp, http.StatusBadRequest)

	link := createLink(t, env, login.AccessToken, api.ShareLinkRequest{
		FileID:      file.ID,
		Email:       "friend@example.com",
		LinkOptions: api.LinkOptions{ExpiresAt: "2026-10-25"},
	})
	if link.URL != "http://files.test/s/"+link.Token {
		t.Errorf("unexpected link url %q", link.URL)
	}
	if !strings.Contains(env.mail.last(t, "friend@example.com").Body, link.URL) {
		t.Error("expected the shared link in the mail")
	}

	resp = performRequest(t, env.media, http.MethodPatch, "/share-links/"+link.ID+"/extend-expiry",
		map[string]string{"expires_at": "2026-12-31"}, headers)
	expectStatus(t, resp, http.StatusOK)
	if ext := decode[api.ShareLink](t, resp); ext.ExpiresAt == nil || ext.ExpiresAt.Month() != time.December {
		t.Errorf("expected december expiry, got %v", ext.ExpiresAt)
	}

	resp = performRequest(t, env.media, http.MethodPatch, "/share-links/"+link.ID+"/update-download-limit",
		map[string]int{"max_downloads": 5}, headers)
	expectStatus(t, resp, http.StatusOK)
	if upd := decode[api.ShareLink](t, resp); upd.MaxDownloads == nil || *upd.MaxDownloads != 5 {
		t.Errorf("expected max_downloads 5, got %v", upd.MaxDownloads)
	}

	resp = performRequest(t, env.media, http.MethodDelete, "/share-links/"+link.ID, nil, headers)
	expectStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.media, http.MethodGet, "/files/"+file.ID+"/share-links", nil, headers)
	links := decode[[]api.ShareLink](t, resp)
	if len(links) != 1 || links[0].Active == nil || *links[0].Active {
		t.Errorf("expected one inactive link, got %+v", links)
	}

	resp = performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/download", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestPasswordProtectedShare(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	file := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "a.txt", "abc", ""))
	link := createLink(t, env, login.AccessToken, api.ShareLinkRequest{
		FileID:      file.ID,
		LinkOptions: api.LinkOptions{Password: "hunter22"},
	})
	if !link.HasPassword {
		t.Error("expected has_password")
	}

	resp := performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/metadata", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	if got := detailOf(t, resp); got != "Password required" {
		t.Errorf("expected password required, got %q", got)
	}

	resp = performRequest(t, env.media, http.MethodPost, "/s/"+link.Token+"/access", map[string]string{"password": "wrong"}, nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.media, http.MethodPost, "/s/"+link.Token+"/access", map[string]string{"password": "hunter22"}, nil)
	expectStatus(t, resp, http.StatusOK)
	grant := decode[api.AccessGrant](t, resp)
	if grant.Grant == "" || grant.ExpiresIn != 900 {
		t.Fatalf("unexpected grant %+v", grant)
	}
	grantHeader := map[string]string{api.AccessGrantHeader: grant.Grant}

	resp = performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/metadata", nil, grantHeader)
	expectStatus(t, resp, http.StatusOK)
	if meta := decode[api.FileMetadata](t, resp); meta.Filename != "a.txt" || !meta.HasPassword {
		t.Errorf("unexpected metadata %+v", meta)
	}

	resp = performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/download", nil, grantHeader)
	expectStatus(t, resp, http.StatusOK)
	if body := readBody(t, resp); body != "abc" {
		t.Errorf("expected file content, got %q", body)
	}

	// A grant only opens the link it was issued for.
	other := createLink(t, env, login.AccessToken, api.ShareLinkRequest{
		FileID:      file.ID,
		LinkOptions: api.LinkOptions{Password: "hunter22"},
	})
	resp = performRequest(t, env.media, http.MethodGet, "/s/"+other.Token+"/metadata", nil, grantHeader)
	expectStatus(t, resp, http.StatusUnauthorized)

	env.clock.Advance(16 * time.Minute)
	resp = performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/metadata", nil, grantHeader)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestShareDownloadLimit(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	file := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "a.txt", "abc", ""))
	limit := 2
	link := createLink(t, env, login.AccessToken, api.ShareLinkRequest{
		FileID:      file.ID,
		LinkOptions: api.LinkOptions{MaxDownloads: &limit},
	})

	for i := 0; i < limit; i++ {
		resp := performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/download", nil, nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	resp := performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/download", nil, nil)
	expectStatus(t, resp, http.StatusGone)
	if got := detailOf(t, resp); got != "Download limit reached" {
		t.Errorf("expected limit detail, got %q", got)
	}
}

func TestShareLinkExpiry(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	file := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "a.txt", "abc", ""))
	link := createLink(t, env, login.AccessToken, api.ShareLinkRequest{
		FileID:      file.ID,
		LinkOptions: api.LinkOptions{ExpiresAt: "2026-10-20"},
	})

	resp := performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/metadata", nil, nil)
	expectStatus(t, resp, http.StatusOK)

	env.clock.Advance(48 * time.Hour)
	resp = performRequest(t, env.media, http.MethodGet, "/s/"+link.Token+"/metadata", nil, nil)
	expectStatus(t, resp, http.StatusGone)
	if got := detailOf(t, resp); got != "This link has expired" {
		t.Errorf("expected expired detail, got %q", got)
	}
}

func TestPublicFolderLinks(t *testing.T) {
	env := setupTestEnv(t)
	user, login := loginAs(t, env, "user@example.com")
	headers := authHeaders(login.AccessToken)

	outside := createFolder(t, env, login.AccessToken, "private", nil)
	shared := createFolder(t, env, login.AccessToken, "shared", nil)
	child := createFolder(t, env, login.AccessToken, "child", &shared.ID)
	inner := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "in.txt", "inside", child.ID))
	secret := decode[api.File](t, uploadFile(t, env, login.AccessToken, user.ID, "out.txt", "outside", outside.ID))

	resp := performRequest(t, env.media, http.MethodPost, "/folders/"+shared.ID+"/public-links", nil, headers)
	expectStatus(t, resp, http.StatusCreated)
	link := decode[api.ShareLink](t, resp)
	if link.URL != "http://files.test/public/folders/"+link.Token {
		t.Errorf("unexpected folder link url %q", link.URL)
	}

	base := "/public/folders/" + link.Token
	resp = performRequest(t, env.media, http.MethodGet, base+"/contents", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	root := decode[api.FolderContents](t, resp)
	if len(root.Subfolders) != 1 || root.Subfolders[0].ID != child.ID {
		t.Errorf("expected child subfolder, got %+v", root.Subfolders)
	}

	resp = performRequest(t, env.media, http.MethodGet, base+"/contents?folder_id="+child.ID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	sub := decode[api.FolderContents](t, resp)
	if len(sub.Breadcrumbs) != 2 || sub.Breadcrumbs[0].ID != shared.ID {
		t.Errorf("expected breadcrumbs rooted at the shared folder, got %+v", sub.Breadcrumbs)
	}

	resp = performRequest(t, env.media, http.MethodGet, base+"/contents?folder_id="+outside.ID, nil, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.media, http.MethodGet, base+"/files/"+inner.ID+"/download", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if body := readBody(t, resp); body != "inside" {
		t.Errorf("expected inner file content, got %q", body)
	}
	resp = performRequest(t, env.media, http.MethodGet, base+"/files/"+secret.ID+"/download", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.media, http.MethodGet, "/folders/"+shared.ID+"/public-links", nil, headers)
	if links := decode[[]api.ShareLink](t, resp); len(links) != 1 {
		t.Errorf("expected one folder link, got %d", len(links))
	}
	resp = performRequest(t, env.media, http.MethodGet, "/folders/"+shared.ID+"/public-links/"+link.ID, nil, headers)
	expectStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.media, http.MethodDelete, "/folders/"+shared.ID+"/public-links/"+link.ID, nil, headers)
	expectStatus(t, resp, http.StatusOK)
	resp = performRequest(t, env.media, http.MethodGet, base+"/contents", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestPasswordProtectedFolderLink(t *testing.T) {
	env := setupTestEnv(t)
	_, login := loginAs(t, env, "user@example.com")
	shared := createFolder(t, env, login.AccessToken, "shared", nil)

	resp := performRequest(t, env.media, http.MethodPost, "/folders/"+shared.ID+"/public-links",
		api.LinkOptions{Password: "open-sesame"}, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusCreated)
	link := decode[api.ShareLink](t, resp)
	base := "/public/folders/" + link.Token

	resp = performRequest(t, env.media, http.MethodGet, base+"/contents", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = performRequest(t, env.media, http.MethodPost, base+"/access", map[string]string{"password": "open-sesame"}, nil)
	expectStatus(t, resp, http.StatusOK)
	grant := decode[api.AccessGrant](t, resp)

	resp = performRequest(t, env.media, http.MethodGet, base+"/contents", nil, map[string]string{api.AccessGrantHeader: grant.Grant})
	expectStatus(t, resp, http.StatusOK)
}

func TestShareFolderByEmail(t *testing.T) {
	env := setupTestEnv(t)
	_, login := loginAs(t, env, "user@example.com")
	shared := createFolder(t, env, login.AccessToken, "photos", nil)

	resp := performRequest(t, env.media, http.MethodPost, "/folders/"+shared.ID+"/share",
		map[string]string{"email": "not-an-email"}, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = performRequest(t, env.media, http.MethodPost, "/folders/"+shared.ID+"/share",
		map[string]string{"email": "Friend@Example.com"}, authHeaders(login.AccessToken))
	expectStatus(t, resp, http.StatusOK)
	if msg := decode[api.MessageResponse](t, resp); msg.Message != "Folder shared with friend@example.com" {
		t.Errorf("unexpected message %q", msg.Message)
	}
	mail := env.mail.last(t, "friend@example.com")
	if !strings.Contains(mail.Body, "/public/folders/") || !strings.Contains(mail.Body, "photos") {
		t.Errorf("unexpected share mail %q", mail.Body)
	}
}
