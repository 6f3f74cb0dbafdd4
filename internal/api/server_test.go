package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mc-launcher-engine/internal/auth"
	"mc-launcher-engine/internal/config"
	"mc-launcher-engine/internal/launcher"
	"mc-launcher-engine/internal/manifest"
	"mc-launcher-engine/internal/security"
	"mc-launcher-engine/internal/storage"
)

type stubDoer struct{}

func (stubDoer) Do(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(nil)}, nil
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&storage.DownloadTask{}, &storage.DownloadLocation{}, &storage.DailyStat{}, &storage.AppSetting{}))
	return &storage.Storage{DB: db}
}

func newTestServer(t *testing.T) (*ControlServer, *config.ConfigManager) {
	t.Helper()
	store := newTestStorage(t)
	t.Cleanup(func() { store.Close() })

	cfg := config.NewConfigManager(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := security.NewAuditLogger(logger)
	t.Cleanup(func() { audit.Close() })

	root := t.TempDir()
	resolver := manifest.NewManifestResolver(
		filepath.Join(root, "versions"),
		filepath.Join(root, "libraries"),
		filepath.Join(root, "assets"),
		stubDoer{},
		manifest.HostProfile{OSName: "linux", Arch: "x86_64"},
	)
	svc := launcher.NewService(logger, auth.NewAccountStore(), resolver, stubDoer{}, "", launcher.Deps{})

	srv := NewControlServer(logger, svc, cfg, audit)
	return srv, cfg
}

func TestControlServerRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/active", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestControlServerRejectsNonLoopback(t *testing.T) {
	srv, cfg := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/active", nil)
	req.RemoteAddr = "203.0.113.5:12345"
	req.Header.Set("X-Launcher-Token", cfg.GetControlServerToken())
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestControlServerGetActiveAuthorized(t *testing.T) {
	srv, cfg := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/active", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("X-Launcher-Token", cfg.GetControlServerToken())
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "uuid")
}

func TestControlServerDownloadJSONRequiresVersionID(t *testing.T) {
	srv, cfg := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/download_json?"+url.Values{}.Encode(), nil)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("X-Launcher-Token", cfg.GetControlServerToken())
	rec := httptest.NewRecorder()

	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
