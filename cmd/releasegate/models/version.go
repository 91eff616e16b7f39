package models

import (
	"io"
	"strconv"
	"time"
)

// Version represents one release in the catalog.
// Maps to: version table, keyed by version_code.
//
// A version is immutable after creation except for is_active (toggled
// by operators) and download_count (incremented by the download
// tracking service, never by this one).
type Version struct {
	// Unique positive ordering key; higher = newer
	VersionCode int64 `db:"version_code" json:"version_code"`

	// Human-facing label, e.g. "1.10"
	VersionName string `db:"version_name" json:"version_name"`

	// Absolute URL clients fetch the artifact from
	DownloadURL string `db:"download_url" json:"download_url"`

	Changelog string `db:"changelog" json:"changelog"`

	// Artifact size in bytes
	FileSize int64 `db:"file_size" json:"file_size"`

	// Audit fields, set once at admission
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`

	// Forced-update flag; clients must install before continuing use
	IsCritical bool `db:"is_critical" json:"is_critical"`

	// Publication flag, mutable post-creation
	IsActive bool `db:"is_active" json:"is_active"`

	DownloadCount int64 `db:"download_count" json:"download_count"`
}

// DocumentKey returns the document-store key for a version code,
// e.g. "version_18". Used in change-feed payloads and record naming.
func DocumentKey(versionCode int64) string {
	return "version_" + strconv.FormatInt(versionCode, 10)
}

// ReleaseDraft is a candidate release submitted for admission.
// Exactly one of DownloadURL (link mode) or Artifact (binary mode)
// carries the release payload.
type ReleaseDraft struct {
	VersionCode int64  `json:"version_code" validate:"required,gt=0"`
	VersionName string `json:"version_name" validate:"required"`
	Changelog   string `json:"changelog" validate:"required"`
	IsCritical  bool   `json:"is_critical"`

	// Link mode
	DownloadURL string `json:"download_url"`
	FileSize    int64  `json:"file_size"`

	// Binary mode
	Artifact *Artifact `json:"-"`
}

// IsBinaryMode reports whether this draft carries a raw artifact
func (d *ReleaseDraft) IsBinaryMode() bool {
	return d.Artifact != nil
}

// Artifact is a raw release binary supplied with a binary-mode draft
type Artifact struct {
	Filename string
	Size     int64
	Reader   io.Reader
}
