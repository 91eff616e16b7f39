package service

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/config"
	"github.com/initcodes20/releasegate/common/logger"
	"github.com/initcodes20/releasegate/common/storage"
)

const artifactContentType = "application/vnd.android.package-archive"

// ProgressEvent reports upload progress for one transfer. Fractions
// are non-decreasing in [0,1]; the final event of a successful
// transfer is exactly 1.0.
type ProgressEvent struct {
	TransferID uuid.UUID
	Bytes      int64
	Total      int64
	Fraction   float64
}

// TransferPipeline streams release artifacts to the blob store and
// resolves their public download URL. Transport failure and URL
// resolution failure are distinct error kinds; neither mutates the
// catalog. A transfer that succeeds but whose commit later fails
// leaves an orphaned blob — reconciled out-of-band, never cleaned up
// here.
type TransferPipeline struct {
	blobs     storage.BlobStore
	keyPrefix string
	log       *logger.Logger
}

// NewTransferPipeline creates a transfer pipeline
func NewTransferPipeline(blobs storage.BlobStore, cfg *config.Config, log *logger.Logger) *TransferPipeline {
	return &TransferPipeline{
		blobs:     blobs,
		keyPrefix: cfg.Upload.KeyPrefix,
		log:       log,
	}
}

// ObjectKey derives the deterministic destination key for a version
// name, so a retried upload of the same release overwrites rather than
// duplicates
func (p *TransferPipeline) ObjectKey(versionName string) string {
	return p.keyPrefix + "/" + versionName
}

// Transfer streams the artifact to the blob store and returns its
// download URL. Progress events are delivered in emission order on the
// given channel when it is non-nil; the caller owns the channel and
// must drain it for the duration of the call. Cancelling ctx abandons
// the transfer.
func (p *TransferPipeline) Transfer(ctx context.Context, artifact *models.Artifact, versionName string, progress chan<- ProgressEvent) (string, error) {
	transferID := uuid.New()
	key := p.ObjectKey(versionName)

	p.log.Info("artifact transfer starting",
		"transfer_id", transferID,
		"key", key,
		"filename", artifact.Filename,
		"size", artifact.Size,
	)

	reader := &progressReader{
		ctx:      ctx,
		reader:   artifact.Reader,
		total:    artifact.Size,
		id:       transferID,
		progress: progress,
	}

	if err := p.blobs.Put(ctx, key, reader, artifact.Size, artifactContentType); err != nil {
		p.log.Error("artifact transfer failed", "transfer_id", transferID, "key", key, "error", err)
		return "", apperr.Wrap(apperr.KindTransferFailure, "artifact transfer failed", err)
	}

	reader.complete()

	url, err := p.blobs.ResolveURL(ctx, key)
	if err != nil {
		p.log.Error("download URL resolution failed", "transfer_id", transferID, "key", key, "error", err)
		return "", apperr.Wrap(apperr.KindURLResolution, "download URL resolution failed", err)
	}

	p.log.Info("artifact transfer complete", "transfer_id", transferID, "key", key, "url", url)

	return url, nil
}

// progressReader emits a progress event after every read chunk. Sends
// block until consumed, preserving emission order, and give up when
// the transfer context ends.
type progressReader struct {
	ctx      context.Context
	reader   io.Reader
	total    int64
	sent     int64
	id       uuid.UUID
	progress chan<- ProgressEvent
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		r.emit(r.sent)
	}
	return n, err
}

// complete emits the terminal event with fraction 1.0
func (r *progressReader) complete() {
	r.emit(r.total)
}

func (r *progressReader) emit(bytes int64) {
	if r.progress == nil {
		return
	}

	fraction := 1.0
	if r.total > 0 && bytes < r.total {
		fraction = float64(bytes) / float64(r.total)
	}

	select {
	case r.progress <- ProgressEvent{
		TransferID: r.id,
		Bytes:      bytes,
		Total:      r.total,
		Fraction:   fraction,
	}:
	case <-r.ctx.Done():
	}
}
