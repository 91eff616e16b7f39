package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/config"
	"github.com/initcodes20/releasegate/common/logger"
)

// memoryCatalog is an in-memory CatalogStore with the same conditional
// create semantics as the Postgres repository
type memoryCatalog struct {
	mu     sync.Mutex
	byCode map[int64]models.Version
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{byCode: make(map[int64]models.Version)}
}

func (m *memoryCatalog) Create(ctx context.Context, version *models.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[version.VersionCode]; exists {
		return apperr.New(apperr.KindConflict,
			fmt.Sprintf("version code %d already exists", version.VersionCode))
	}
	m.byCode[version.VersionCode] = *version
	return nil
}

func (m *memoryCatalog) SetActive(ctx context.Context, versionCode int64, active bool) error {
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

func (m *memoryCatalog) List(ctx context.Context) ([]models.Version, error) {
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

func (m *memoryCatalog) GetByCode(ctx context.Context, versionCode int64) (*models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exists := m.byCode[versionCode]
	if !exists {
		return nil, apperr.New(apperr.KindNotFound,
			fmt.Sprintf("version code %d not found", versionCode))
	}
	return &v, nil
}

// fakeBlobStore is an in-memory BlobStore for transfer tests
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	urlErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeBlobStore) ResolveURL(ctx context.Context, key string) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "https://blobs.test/" + key, nil
}

func (f *fakeBlobStore) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{
			MaxArtifactSize:   config.DefaultMaxArtifactSize,
			ArtifactExtension: ".apk",
			KeyPrefix:         "releases",
		},
	}
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

// recvSnapshot waits for the next snapshot on a subscription
func recvSnapshot(t *testing.T, sub *Subscription) []models.Version {
	t.Helper()
	select {
	case snapshot, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}

// waitForCode reads snapshots until one contains the given version code
func waitForCode(t *testing.T, sub *Subscription, versionCode int64) []models.Version {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot, ok := <-sub.C:
			if !ok {
				t.Fatal("subscription closed unexpectedly")
			}
			for _, v := range snapshot {
				if v.VersionCode == versionCode {
					return snapshot
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for version code %d", versionCode)
		}
	}
}
