package service

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/common/config"
)

// Validator checks a candidate release draft against field rules and
// the current catalog snapshot. All violations are collected and
// reported together so the caller sees every problem at once.
//
// The duplicate-code check here is optimistic only: it runs against a
// possibly stale snapshot and exists for fast feedback. The
// authoritative check is the conditional insert in the repository.
type Validator struct {
	validate          *validator.Validate
	maxArtifactSize   int64
	artifactExtension string
}

// NewValidator creates a validator configured with upload limits
func NewValidator(cfg *config.Config) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report violations under json field names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate:          v,
		maxArtifactSize:   cfg.Upload.MaxArtifactSize,
		artifactExtension: strings.ToLower(cfg.Upload.ArtifactExtension),
	}
}

// Validate returns every violation in the draft. An empty map means
// the draft is admissible (subject to the commit-time uniqueness check).
func (v *Validator) Validate(draft *models.ReleaseDraft, snapshot []models.Version) apperr.FieldErrors {
	fields := apperr.FieldErrors{}

	if err := v.validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				addViolation(fields, fe.Field(), tagMessage(fe.Tag()))
			}
		}
	}

	if draft.IsBinaryMode() {
		v.validateArtifact(fields, draft.Artifact)
	} else {
		v.validateLink(fields, draft)
	}

	// Optimistic duplicate check against the caller-visible snapshot
	for _, existing := range snapshot {
		if existing.VersionCode == draft.VersionCode {
			addViolation(fields, "version_code",
				fmt.Sprintf("version code %d already exists", draft.VersionCode))
			break
		}
	}

	return fields
}

func (v *Validator) validateLink(fields apperr.FieldErrors, draft *models.ReleaseDraft) {
	if draft.DownloadURL == "" {
		addViolation(fields, "download_url", "download URL is required")
	} else if !isAbsoluteURL(draft.DownloadURL) {
		addViolation(fields, "download_url", "must be a well-formed absolute URL")
	}

	if draft.FileSize <= 0 {
		addViolation(fields, "file_size", "file size must be greater than 0")
	}
}

func (v *Validator) validateArtifact(fields apperr.FieldErrors, artifact *models.Artifact) {
	if !strings.HasSuffix(strings.ToLower(artifact.Filename), v.artifactExtension) {
		addViolation(fields, "artifact",
			fmt.Sprintf("filename must end with %s", v.artifactExtension))
	}

	if artifact.Size <= 0 {
		addViolation(fields, "artifact", "artifact is empty")
	} else if artifact.Size > v.maxArtifactSize {
		addViolation(fields, "artifact",
			fmt.Sprintf("artifact exceeds the %d byte limit", v.maxArtifactSize))
	}
}

// addViolation keeps the first violation reported for a field
func addViolation(fields apperr.FieldErrors, field, message string) {
	if _, ok := fields[field]; !ok {
		fields[field] = message
	}
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

func tagMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than 0"
	default:
		return "is invalid"
	}
}
