package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/initcodes20/releasegate/cmd/releasegate/apperr"
	"github.com/initcodes20/releasegate/cmd/releasegate/middleware"
	"github.com/initcodes20/releasegate/cmd/releasegate/models"
	"github.com/initcodes20/releasegate/cmd/releasegate/service"
	"github.com/initcodes20/releasegate/common/logger"
)

// VersionHandler handles version catalog operations
type VersionHandler struct {
	catalog   *service.CatalogService
	admission *service.AdmissionController
	log       *logger.Logger
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(catalog *service.CatalogService, admission *service.AdmissionController, log *logger.Logger) *VersionHandler {
	return &VersionHandler{
		catalog:   catalog,
		admission: admission,
		log:       log,
	}
}

// List returns the full catalog, newest first
// GET /api/v1/versions
func (h *VersionHandler) List(c echo.Context) error {
	versions, err := h.catalog.Snapshot(c.Request().Context())
	if err != nil {
		h.log.Error("failed to load catalog", "error", err)
		return writeError(c, err)
	}

	if versions == nil {
		versions = []models.Version{}
	}
	return c.JSON(http.StatusOK, versions)
}

// Latest returns the version with the highest code, active or not.
// Installed clients poll this and compare codes to decide whether to
// update; is_critical drives the forced-update prompt client-side.
// GET /api/v1/versions/latest
func (h *VersionHandler) Latest(c echo.Context) error {
	version, err := h.catalog.Latest(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, version)
}

// Create admits a link-mode release: the artifact is already hosted
// and the draft carries its URL and size
// POST /api/v1/versions
func (h *VersionHandler) Create(c echo.Context) error {
	var draft models.ReleaseDraft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	version, err := h.admission.Admit(c.Request().Context(), &draft, middleware.GetUploader(c), nil)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, version)
}

// Upload admits a binary-mode release from a multipart form. Fields:
// version_code, version_name, changelog, is_critical; file field
// "artifact".
// POST /api/v1/versions/upload
func (h *VersionHandler) Upload(c echo.Context) error {
	versionCode, err := strconv.ParseInt(c.FormValue("version_code"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version_code")
	}

	fileHeader, err := c.FormFile("artifact")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "artifact file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error("failed to open uploaded artifact", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable artifact")
	}
	defer file.Close()

	draft := models.ReleaseDraft{
		VersionCode: versionCode,
		VersionName: c.FormValue("version_name"),
		Changelog:   c.FormValue("changelog"),
		IsCritical:  c.FormValue("is_critical") == "true",
		Artifact: &models.Artifact{
			Filename: fileHeader.Filename,
			Size:     fileHeader.Size,
			Reader:   file,
		},
	}

	// Drain transfer progress into the log; the websocket feed carries
	// catalog state, not per-transfer progress
	progress := make(chan service.ProgressEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range progress {
			h.log.Debug("upload progress",
				"transfer_id", event.TransferID,
				"bytes", event.Bytes,
				"fraction", event.Fraction,
			)
		}
	}()

	version, admitErr := h.admission.Admit(c.Request().Context(), &draft, middleware.GetUploader(c), progress)
	close(progress)
	<-done

	if admitErr != nil {
		return writeError(c, admitErr)
	}

	return c.JSON(http.StatusCreated, version)
}

// SetActive toggles the publication flag of a version
// PATCH /api/v1/versions/:code/active
func (h *VersionHandler) SetActive(c echo.Context) error {
	versionCode, err := strconv.ParseInt(c.Param("code"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version code")
	}

	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := c.Bind(&body); err != nil || body.IsActive == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_active is required")
	}

	if err := h.catalog.SetActive(c.Request().Context(), versionCode, *body.IsActive); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version_code": versionCode,
		"is_active":    *body.IsActive,
	})
}

// Download redirects to the stored artifact URL. Download counting is
// handled by a separate tracking service observing client fetches.
// GET /api/v1/versions/:code/download
func (h *VersionHandler) Download(c echo.Context) error {
	versionCode, err := strconv.ParseInt(c.Param("code"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version code")
	}

	version, err := h.catalog.GetByCode(c.Request().Context(), versionCode)
	if err != nil {
		return writeError(c, err)
	}

	return c.Redirect(http.StatusFound, version.DownloadURL)
}

// writeError maps tagged domain errors to HTTP responses
func writeError(c echo.Context, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":  "invalid release draft",
			"fields": apperr.FieldsOf(err),
		})
	case apperr.KindConflict:
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
		})
	case apperr.KindNotFound:
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})
	case apperr.KindTransferFailure, apperr.KindURLResolution:
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "internal error",
		})
	}
}
