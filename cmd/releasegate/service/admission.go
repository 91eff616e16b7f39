package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/logger"
)

// AdmissionState tracks one admission attempt through its lifecycle:
// Draft → Validating → (Transferring →) Committing → Published | Failed.
// Failed is terminal; an attempt is never retried automatically.
type AdmissionState string

const (
	StateDraft        AdmissionState = "draft"
	StateValidating   AdmissionState = "validating"
	StateTransferring AdmissionState = "transferring"
	StateCommitting   AdmissionState = "committing"
	StatePublished    AdmissionState = "published"
	StateFailed       AdmissionState = "failed"
)

// AdmissionController orchestrates the end-to-end admission of a new
// release: validate, transfer when a raw artifact is supplied, build
// the immutable record, and conditionally commit it. A commit-time
// Conflict is surfaced to the caller, never absorbed by retrying with
// a different code.
type AdmissionController struct {
	validator *Validator
	transfer  *TransferPipeline
	catalog   *CatalogService
	log       *logger.Logger
}

// NewAdmissionController creates an admission controller
func NewAdmissionController(validator *Validator, transfer *TransferPipeline, catalog *CatalogService, log *logger.Logger) *AdmissionController {
	return &AdmissionController{
		validator: validator,
		transfer:  transfer,
		catalog:   catalog,
		log:       log,
	}
}

// Admit runs a single admission attempt and returns the published
// version record. progress may be nil; when set it receives transfer
// progress for binary-mode drafts and the caller must drain it.
//
// Cancelling ctx abandons the attempt. An abandoned attempt may leave
// an orphaned blob in the store but never a partial catalog record.
func (a *AdmissionController) Admit(ctx context.Context, draft *models.ReleaseDraft, uploadedBy string, progress chan<- ProgressEvent) (*models.Version, error) {
	attemptID := uuid.New()
	log := a.log.WithAttempt(attemptID.String()).WithVersionCode(draft.VersionCode)

	state := StateDraft
	advance := func(next AdmissionState) {
		state = next
		log.Debug("admission state", "state", state)
	}

	advance(StateValidating)

	snapshot, err := a.catalog.Snapshot(ctx)
	if err != nil {
		advance(StateFailed)
		return nil, fmt.Errorf("load catalog snapshot: %w", err)
	}

	if fields := a.validator.Validate(draft, snapshot); len(fields) > 0 {
		advance(StateFailed)
		log.Info("draft rejected", "violations", len(fields))

		// A draft whose only problem is a taken version code gets the
		// same Conflict answer as the commit-time race: the remedy in
		// both cases is resubmitting with a new code.
		if _, taken := fields["version_code"]; taken && len(fields) == 1 && codeInSnapshot(snapshot, draft.VersionCode) {
			return nil, apperr.New(apperr.KindConflict,
				fmt.Sprintf("version code %d already exists", draft.VersionCode))
		}
		return nil, apperr.Invalid(fields)
	}

	downloadURL := draft.DownloadURL
	fileSize := draft.FileSize

	if draft.IsBinaryMode() {
		advance(StateTransferring)

		url, err := a.transfer.Transfer(ctx, draft.Artifact, draft.VersionName, progress)
		if err != nil {
			advance(StateFailed)
			return nil, err
		}

		downloadURL = url
		fileSize = draft.Artifact.Size
	}

	// An abandoned attempt must not reach the store: the only durable
	// effect permitted after cancellation is the orphaned blob above.
	if err := ctx.Err(); err != nil {
		advance(StateFailed)
		return nil, fmt.Errorf("admission abandoned: %w", err)
	}

	advance(StateCommitting)

	version := &models.Version{
		VersionCode:   draft.VersionCode,
		VersionName:   draft.VersionName,
		DownloadURL:   downloadURL,
		Changelog:     draft.Changelog,
		FileSize:      fileSize,
		UploadedAt:    time.Now().UTC(),
		UploadedBy:    uploadedBy,
		IsCritical:    draft.IsCritical,
		IsActive:      true,
		DownloadCount: 0,
	}

	if err := a.catalog.Commit(ctx, version); err != nil {
		advance(StateFailed)
		if apperr.Is(err, apperr.KindConflict) {
			// The optimistic check passed against a stale snapshot and
			// another writer won the code; the caller must pick a new one.
			log.Info("commit lost the version code race")
		}
		return nil, err
	}

	advance(StatePublished)
	log.Info("release published", "uploaded_by", uploadedBy, "url", version.DownloadURL)

	return version, nil
}

func codeInSnapshot(snapshot []models.Version, versionCode int64) bool {
	for _, v := range snapshot {
		if v.VersionCode == versionCode {
			return true
		}
	}
	return false
}
