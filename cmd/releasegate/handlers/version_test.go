package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/cmd/releasegate/service"
	"github.com/initcodes20/releasegate/common/config"
	"github.com/initcodes20/releasegate/common/logger"
)

// memStore is an in-memory service.CatalogStore for handler tests
type memStore struct {
	mu     sync.Mutex
	byCode map[int64]models.Version
}

func newMemStore() *memStore {
	return &memStore{byCode: make(map[int64]models.Version)}
}

func (m *memStore) Create(ctx context.Context, version *models.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byCode[version.VersionCode]; exists {
		return apperr.New(apperr.KindConflict,
			fmt.Sprintf("version code %d already exists", version.VersionCode))
	}
	m.byCode[version.VersionCode] = *version
	return nil
}

func (m *memStore) SetActive(ctx context.Context, versionCode int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, exists := m.byCode[versionCode]
	if !exists {
		return apperr.New(apperr.KindNotFound,
			fmt.Sprintf("version code %d not found", versionCode))
	}
	v.IsActive = active
	m.byCode[versionCode] = v
	return nil
}

func (m *memStore) List(ctx context.Context) ([]models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := make([]models.Version, 0, len(m.byCode))
	for _, v := range m.byCode {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionCode > versions[j].VersionCode
	})
	return versions, nil
}

func (m *memStore) GetByCode(ctx context.Context, versionCode int64) (*models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, exists := m.byCode[versionCode]
	if !exists {
		return nil, apperr.New(apperr.KindNotFound,
			fmt.Sprintf("version code %d not found", versionCode))
	}
	return &v, nil
}

// memBlobStore discards uploaded bytes and hands back a stable URL
type memBlobStore struct{}

func (memBlobStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := io.Copy(io.Discard, reader)
	return err
}

func (memBlobStore) ResolveURL(ctx context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func newTestHandler() (*VersionHandler, *service.CatalogService) {
	cfg := &config.Config{
		Upload: config.UploadConfig{
			MaxArtifactSize:   config.DefaultMaxArtifactSize,
			ArtifactExtension: ".apk",
			KeyPrefix:         "releases",
		},
	}
	log := logger.New("error", "json")

	catalog := service.NewCatalogService(newMemStore(), service.NewBroadcaster(log), nil, log)
	admission := service.NewAdmissionController(
		service.NewValidator(cfg),
		service.NewTransferPipeline(memBlobStore{}, cfg, log),
		catalog,
		log,
	)
	return NewVersionHandler(catalog, admission, log), catalog
}

func doRequest(h echo.HandlerFunc, req *http.Request, pathParams map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for name, value := range pathParams {
		c.SetParamNames(name)
		c.SetParamValues(value)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

const validDraftJSON = `{
	"version_code": 18,
	"version_name": "1.10",
	"changelog": "fixes",
	"download_url": "https://example.com/a.apk",
	"file_size": 1000000
}`

func TestListEmptyCatalogReturnsEmptyArray(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(h.List, httptest.NewRequest(http.MethodGet, "/api/v1/versions", nil), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreatePublishesVersion(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(h.Create, jsonRequest(http.MethodPost, "/api/v1/versions", validDraftJSON), nil)

	require.Equal(t, http.StatusCreated, rec.Code)

	var version models.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, int64(18), version.VersionCode)
	assert.True(t, version.IsActive)

	list := doRequest(h.List, httptest.NewRequest(http.MethodGet, "/api/v1/versions", nil), nil)
	var versions []models.Version
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &versions))
	assert.Len(t, versions, 1)
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	h, _ := newTestHandler()

	first := doRequest(h.Create, jsonRequest(http.MethodPost, "/api/v1/versions", validDraftJSON), nil)
	require.Equal(t, http.StatusCreated, first.Code)

	second := doRequest(h.Create, jsonRequest(http.MethodPost, "/api/v1/versions", validDraftJSON), nil)
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestCreateInvalidDraftReportsFields(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"version_code": 0, "version_name": "1.10", "changelog": "", "download_url": "https://example.com/a.apk", "file_size": 100}`
	rec := doRequest(h.Create, jsonRequest(http.MethodPost, "/api/v1/versions", body), nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "version_code")
	assert.Contains(t, resp.Fields, "changelog")
}

func TestLatestEmptyCatalog(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(h.Latest, httptest.NewRequest(http.MethodGet, "/api/v1/versions/latest", nil), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestReturnsHighestCode(t *testing.T) {
	h, catalog := newTestHandler()
	seedHandlerVersion(t, catalog, 17, true)
	seedHandlerVersion(t, catalog, 18, false)

	rec := doRequest(h.Latest, httptest.NewRequest(http.MethodGet, "/api/v1/versions/latest", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var version models.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, int64(18), version.VersionCode)
	assert.False(t, version.IsActive)
}

func TestSetActiveIsIdempotent(t *testing.T) {
	h, catalog := newTestHandler()
	seedHandlerVersion(t, catalog, 18, true)

	for i := 0; i < 2; i++ {
		req := jsonRequest(http.MethodPatch, "/api/v1/versions/18/active", `{"is_active": false}`)
		rec := doRequest(h.SetActive, req, map[string]string{"code": "18"})
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	version, err := catalog.GetByCode(context.Background(), 18)
	require.NoError(t, err)
	assert.False(t, version.IsActive)
}

func TestSetActiveUnknownVersion(t *testing.T) {
	h, _ := newTestHandler()

	req := jsonRequest(http.MethodPatch, "/api/v1/versions/404/active", `{"is_active": false}`)
	rec := doRequest(h.SetActive, req, map[string]string{"code": "404"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetActiveRequiresFlag(t *testing.T) {
	h, catalog := newTestHandler()
	seedHandlerVersion(t, catalog, 18, true)

	req := jsonRequest(http.MethodPatch, "/api/v1/versions/18/active", `{}`)
	rec := doRequest(h.SetActive, req, map[string]string{"code": "18"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadRedirectsToArtifact(t *testing.T) {
	h, catalog := newTestHandler()
	seedHandlerVersion(t, catalog, 18, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/versions/18/download", nil)
	rec := doRequest(h.Download, req, map[string]string{"code": "18"})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://cdn.example.com/18.apk", rec.Header().Get("Location"))
}

func TestDownloadUnknownVersion(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/versions/404/download", nil)
	rec := doRequest(h.Download, req, map[string]string{"code": "404"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadAdmitsBinaryRelease(t *testing.T) {
	h, _ := newTestHandler()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("version_code", "19"))
	require.NoError(t, writer.WriteField("version_name", "1.11"))
	require.NoError(t, writer.WriteField("changelog", "binary release"))
	require.NoError(t, writer.WriteField("is_critical", "true"))
	part, err := writer.CreateFormFile("artifact", "app.apk")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0xEF}, 4096))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/versions/upload", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set("X-User-ID", "ci-bot")

	rec := doRequest(h.Upload, req, nil)

	require.Equal(t, http.StatusCreated, rec.Code)

	var version models.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, int64(19), version.VersionCode)
	assert.True(t, version.IsCritical)
	assert.Equal(t, "https://blobs.test/releases/1.11", version.DownloadURL)
	assert.Equal(t, int64(4096), version.FileSize)
}

func TestUploadMissingArtifact(t *testing.T) {
	h, _ := newTestHandler()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("version_code", "19"))
	require.NoError(t, writer.WriteField("version_name", "1.11"))
	require.NoError(t, writer.WriteField("changelog", "no file"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/versions/upload", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())

	rec := doRequest(h.Upload, req, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedHandlerVersion(t *testing.T, catalog *service.CatalogService, versionCode int64, active bool) {
	t.Helper()
	err := catalog.Commit(context.Background(), &models.Version{
		VersionCode: versionCode,
		VersionName: fmt.Sprintf("1.%d", versionCode),
		DownloadURL: fmt.Sprintf("https://cdn.example.com/%d.apk", versionCode),
		Changelog:   "seed",
		FileSize:    1024,
		IsActive:    active,
	})
	require.NoError(t, err)
}
