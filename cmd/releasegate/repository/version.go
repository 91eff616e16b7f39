package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/db"
)

// schema creates the version table. One row per release, keyed by the
// globally unique version_code.
const schema = `
	CREATE TABLE IF NOT EXISTS version (
		version_code   BIGINT PRIMARY KEY,
		version_name   TEXT NOT NULL,
		download_url   TEXT NOT NULL,
		changelog      TEXT NOT NULL,
		file_size      BIGINT NOT NULL DEFAULT 0,
		uploaded_at    TIMESTAMPTZ NOT NULL,
		uploaded_by    TEXT NOT NULL,
		is_critical    BOOLEAN NOT NULL DEFAULT FALSE,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		download_count BIGINT NOT NULL DEFAULT 0
	)
`

// EnsureSchema creates the catalog table if it does not exist.
// Intended for the bootstrap DB init hook.
func EnsureSchema(ctx context.Context, database *db.DB) error {
	if _, err := database.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure version schema: %w", err)
	}
	return nil
}

// VersionRepository handles database operations for the version catalog
type VersionRepository struct {
	db *db.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *db.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Create inserts a new version record. The insert is conditional on the
// version code: under concurrent creation of the same code exactly one
// caller succeeds and every other observes a Conflict error. This is
// the authoritative uniqueness check; the validation layer's duplicate
// check is only an optimistic fast path.
func (r *VersionRepository) Create(ctx context.Context, version *models.Version) error {
	query := `
		INSERT INTO version (
			version_code, version_name, download_url, changelog, file_size,
			uploaded_at, uploaded_by, is_critical, is_active, download_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (version_code) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		version.VersionCode,
		version.VersionName,
		version.DownloadURL,
		version.Changelog,
		version.FileSize,
		version.UploadedAt,
		version.UploadedBy,
		version.IsCritical,
		version.IsActive,
		version.DownloadCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindConflict,
			fmt.Sprintf("version code %d already exists", version.VersionCode))
	}

	return nil
}

// SetActive updates only the publication flag of an existing version.
// Repeating the same toggle is a no-op, not an error.
func (r *VersionRepository) SetActive(ctx context.Context, versionCode int64, active bool) error {
	query := `UPDATE version SET is_active = $2 WHERE version_code = $1`

	tag, err := r.db.Exec(ctx, query, versionCode, active)
	if err != nil {
		return fmt.Errorf("failed to update version status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound,
			fmt.Sprintf("version code %d not found", versionCode))
	}

	return nil
}

// List retrieves the full catalog ordered descending by version code,
// newest first
func (r *VersionRepository) List(ctx context.Context) ([]models.Version, error) {
	query := `
		SELECT version_code, version_name, download_url, changelog, file_size,
		       uploaded_at, uploaded_by, is_critical, is_active, download_count
		FROM version
		ORDER BY version_code DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []models.Version
	for rows.Next() {
		var v models.Version
		err := rows.Scan(
			&v.VersionCode,
			&v.VersionName,
			&v.DownloadURL,
			&v.Changelog,
			&v.FileSize,
			&v.UploadedAt,
			&v.UploadedBy,
			&v.IsCritical,
			&v.IsActive,
			&v.DownloadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// GetByCode retrieves a single version by its code
func (r *VersionRepository) GetByCode(ctx context.Context, versionCode int64) (*models.Version, error) {
	query := `
		SELECT version_code, version_name, download_url, changelog, file_size,
		       uploaded_at, uploaded_by, is_critical, is_active, download_count
		FROM version
		WHERE version_code = $1
	`

	var v models.Version
	err := r.db.QueryRow(ctx, query, versionCode).Scan(
		&v.VersionCode,
		&v.VersionName,
		&v.DownloadURL,
		&v.Changelog,
		&v.FileSize,
		&v.UploadedAt,
		&v.UploadedBy,
		&v.IsCritical,
		&v.IsActive,
		&v.DownloadCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound,
				fmt.Sprintf("version code %d not found", versionCode))
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return &v, nil
}
