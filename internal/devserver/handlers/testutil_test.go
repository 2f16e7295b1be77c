package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/filedeck/filedeck/internal/api"
	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/filedeck/filedeck/internal/devserver/database"
	"github.com/filedeck/filedeck/internal/devserver/middleware"
	"github.com/filedeck/filedeck/internal/devserver/models"
	"github.com/filedeck/filedeck/internal/devserver/storage"
	"github.com/filedeck/filedeck/internal/devserver/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type sentMail struct {
	To, Subject, Body string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// last returns the most recent message sent to to.
func (m *captureMailer) last(t *testing.T, to string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i]
		}
	}
	t.Fatalf("no mail sent to %s", to)
	return sentMail{}
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastWord is the token at the end of a verification or reset mail.
func lastWord(s string) string {
	fields := strings.Fields(s)
	return fields[len(fields)-1]
}

var passcodePattern = regexp.MustCompile(`\b\d{6}\b`)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	auth  *fiber.App
	media *fiber.App
	db    *gorm.DB
	mail  *captureMailer
	clock *testClock
}

func testConfig() config.Config {
	return config.Config{
		PublicURL:           "http://files.test",
		Version:             "test",
		CORSOrigins:         "http://localhost:5173",
		BodyLimit:           10 * 1024 * 1024,
		DefaultStorageLimit: 1024 * 1024,
		OAuthDevProvider:    true,
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			GrantTTL:   15 * time.Minute,
		},
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	blobs, err := storage.NewDiskBlobs(t.TempDir())
	if err != nil {
		t.Fatalf("failed creating blob dir: %v", err)
	}

	mail := &captureMailer{}
	clock := &testClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	tokens := utils.NewTokens(cfg.JWT, clock.Now)
	deps := Deps{
		Config: cfg,
		DB:     db,
		Blobs:  blobs,
		Mail:   mail,
		Log:    log,
		Tokens: tokens,
		Now:    clock.Now,
	}
	authMiddleware := middleware.NewAuth(db, tokens, log)

	newApp := func() *fiber.App {
		app := fiber.New(fiber.Config{BodyLimit: cfg.BodyLimit, ErrorHandler: utils.ErrorHandler(log)})
		app.Use(recover.New(recover.Config{EnableStackTrace: true}))
		return app
	}
	authApp, mediaApp := newApp(), newApp()
	RegisterAuthRoutes(authApp, deps, authMiddleware)
	RegisterMediaRoutes(mediaApp, deps, authMiddleware)

	return &testEnv{auth: authApp, media: mediaApp, db: db, mail: mail, clock: clock}
}

func createTestUser(t *testing.T, env *testEnv, email, password string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     "Test User",
		IsVerified:   true,
		StorageLimit: testConfig().DefaultStorageLimit,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

// loginAs creates a user and returns it with a fresh token pair.
func loginAs(t *testing.T, env *testEnv, email string) (*models.User, api.LoginResponse) {
	t.Helper()
	user := createTestUser(t, env, email, "password123")
	resp := performRequest(t, env.auth, http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": "password123"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed with status %d", resp.StatusCode)
	}
	return user, decode[api.LoginResponse](t, resp)
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed encoding body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	return out
}

func detailOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[struct {
		Detail string `json:"detail"`
	}](t, resp).Detail
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func uploadFile(t *testing.T, env *testEnv, token, userID, name, content, folderID string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if folderID != "" {
		_ = mw.WriteField("folder_id", folderID)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload/"+userID, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := env.media.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}
