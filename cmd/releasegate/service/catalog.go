package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/logger"
)

// CatalogStore is the persistent, authoritative ordered set of version
// records. Create must be conditional on the version code: under
// concurrent creation of the same code exactly one caller succeeds and
// the rest observe a Conflict error. These operations are the only
// path that mutates catalog state.
type CatalogStore interface {
	Create(ctx context.Context, version *models.Version) error
	SetActive(ctx context.Context, versionCode int64, active bool) error
	List(ctx context.Context) ([]models.Version, error)
	GetByCode(ctx context.Context, versionCode int64) (*models.Version, error)
}

// ChangePublisher pushes catalog change events to the cross-instance
// feed
type ChangePublisher interface {
	PublishEvent(ctx context.Context, channel string, message string) error
}

// ChangeChannel is the Redis channel carrying catalog change events
const ChangeChannel = "catalog:changed"

// ChangeEvent is the payload published after every catalog mutation
type ChangeEvent struct {
	// Document-store key of the touched record, e.g. "version_18"
	Key         string `json:"key"`
	VersionCode int64  `json:"version_code"`
}

const announceTimeout = 5 * time.Second

// CatalogService exposes catalog reads, the two permitted mutations,
// and live subscriptions. Every successful mutation re-emits the full
// ordered catalog to subscribers, asynchronously relative to the write.
type CatalogService struct {
	store       CatalogStore
	broadcaster *Broadcaster
	events      ChangePublisher
	log         *logger.Logger

	// loadMu orders snapshot loads against broadcasts: held across
	// List-then-Broadcast in Refresh and across List-then-register in
	// Subscribe. A broadcast therefore never carries a snapshot older
	// than one already delivered, and no mutation can slip between a
	// subscriber's seed read and its registration.
	loadMu sync.Mutex
}

// NewCatalogService creates a catalog service. events may be nil when
// no cross-instance feed is configured.
func NewCatalogService(store CatalogStore, broadcaster *Broadcaster, events ChangePublisher, log *logger.Logger) *CatalogService {
	return &CatalogService{
		store:       store,
		broadcaster: broadcaster,
		events:      events,
		log:         log,
	}
}

// Snapshot returns a point-in-time read of the catalog, descending by
// version code
func (s *CatalogService) Snapshot(ctx context.Context) ([]models.Version, error) {
	return s.store.List(ctx)
}

// Latest returns the version with the maximum code, irrespective of
// its publication flag
func (s *CatalogService) Latest(ctx context.Context) (*models.Version, error) {
	versions, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "catalog is empty")
	}
	return &versions[0], nil
}

// GetByCode returns a single version record
func (s *CatalogService) GetByCode(ctx context.Context, versionCode int64) (*models.Version, error) {
	return s.store.GetByCode(ctx, versionCode)
}

// Commit writes a new version record. A duplicate code surfaces as a
// Conflict error from the store; the record is never overwritten.
func (s *CatalogService) Commit(ctx context.Context, version *models.Version) error {
	if err := s.store.Create(ctx, version); err != nil {
		return err
	}

	s.log.Info("version committed",
		"version_code", version.VersionCode,
		"version_name", version.VersionName,
		"critical", version.IsCritical,
	)

	s.announce(version.VersionCode)
	return nil
}

// SetActive toggles the publication flag of an existing version.
// Repeating the same value is a no-op success.
func (s *CatalogService) SetActive(ctx context.Context, versionCode int64, active bool) error {
	if err := s.store.SetActive(ctx, versionCode, active); err != nil {
		return err
	}

	s.log.Info("version status updated", "version_code", versionCode, "active", active)

	s.announce(versionCode)
	return nil
}

// Subscribe registers a live catalog feed seeded with the current
// snapshot. The caller must release the subscription on teardown.
func (s *CatalogService) Subscribe(ctx context.Context) (*Subscription, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	snapshot, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.broadcaster.Subscribe(snapshot), nil
}

// Refresh reloads the catalog and pushes it to all subscribers. Called
// by the change feed when another instance mutates the catalog.
// Serialized under loadMu so concurrent refreshes cannot deliver
// snapshots out of commit order.
func (s *CatalogService) Refresh(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	snapshot, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	s.broadcaster.Broadcast(snapshot)
	return nil
}

// announce propagates a mutation to subscribers and to the
// cross-instance change channel. Runs asynchronously so fan-out never
// slows the commit that triggered it; failures here are logged only,
// since a fresh snapshot heals any missed update.
func (s *CatalogService) announce(versionCode int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		defer cancel()

		if s.events != nil {
			payload, err := json.Marshal(ChangeEvent{
				Key:         models.DocumentKey(versionCode),
				VersionCode: versionCode,
			})
			if err == nil {
				if err := s.events.PublishEvent(ctx, ChangeChannel, string(payload)); err != nil {
					s.log.Warn("change event publish failed", "version_code", versionCode, "error", err)
				}
			}
		}

		if err := s.Refresh(ctx); err != nil {
			s.log.Warn("subscriber refresh failed", "version_code", versionCode, "error", err)
		}
	}()
}
