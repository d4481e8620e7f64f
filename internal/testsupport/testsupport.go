package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ctabeacon/internal"
	"ctabeacon/internal/config"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/database"
	"ctabeacon/internal/operators"
	"ctabeacon/internal/ratelimit"
)

// SessionCookieName matches cfg.AppName + "_session" in routes.go.
const SessionCookieName = "ctabeacon_session"

// BrowserUserAgent is sent by the request helpers.
const BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15"

// testDBCache lets several calls within one test share a database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB returns a migrated in-memory database shared by the root test
// and its subtests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := database.Migrate(db); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager and logger.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set CTABEACON_ENV=test", cfg.Environment)
	}
	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables)
	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestCTA stores def after filling a name when it has none.
func CreateTestCTA(t *testing.T, db *gorm.DB, def ctas.Definition) *ctas.Definition {
	t.Helper()
	if def.Name == "" {
		def.Name = "Test CTA"
	}
	require.NoError(t, db.Create(&def).Error)
	return &def
}

// CreateTestOperator creates an operator with a bcrypt-hashed password.
func CreateTestOperator(t *testing.T, db *gorm.DB, email, password string) *operators.Operator {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	op := &operators.Operator{
		Email:             strings.ToLower(email),
		EncryptedPassword: string(hashed),
	}
	require.NoError(t, db.Create(op).Error)
	return op
}

// TestApp is a server wired to in-memory collaborators.
type TestApp struct {
	*fiber.App
	Services *internal.Services
	Counters *ratelimit.MemoryStore
	Now      time.Time
}

// Advance moves the counter store clock forward.
func (a *TestApp) Advance(d time.Duration) {
	a.Now = a.Now.Add(d)
}

// CreateMinimalTestApp creates a test server with all routes and an
// in-memory counter store.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *TestApp {
	return CreateTestAppWithExtensions(t, db, internal.Extensions{})
}

// CreateTestAppWithExtensions is CreateMinimalTestApp with add-ons.
func CreateTestAppWithExtensions(t *testing.T, db *gorm.DB, ext internal.Extensions) *TestApp {
	t.Helper()

	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	ta := &TestApp{Now: time.Now()}
	ta.Counters = ratelimit.NewMemoryStore(func() time.Time { return ta.Now })

	log := GetLogger()
	ta.Services = internal.NewServices(appConfig, db, ta.Counters, log, ext)

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = log
	cfg.DBManager = NewTestDBManager(db)
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv, ta.Services)
	ta.App = srv.App()
	return ta
}

// LoginTestOperator logs in through POST /login and returns the session
// cookie value.
func LoginTestOperator(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()

	req := httptest.NewRequest("GET", "/login", nil)
	req.Header.Set("User-Agent", BrowserUserAgent)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)

	var csrfToken, csrfCookie string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrf_" {
			csrfToken = cookie.Value
			csrfCookie = fmt.Sprintf("%s=%s", cookie.Name, cookie.Value)
			break
		}
	}
	require.NotEmpty(t, csrfToken)

	form := url.Values{}
	form.Add("email", email)
	form.Add("password", password)
	form.Add("_csrf", csrfToken)

	req = httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Cookie", csrfCookie)

	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie.Value
		}
	}
	t.Fatal("testsupport: login did not set a session cookie")
	return ""
}
