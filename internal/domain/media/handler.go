package media

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/domain/tenant"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
	"github.com/scribehealth/recordstore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/media-assets", h.CreateAsset)
	api.GET("/media-assets/:id", h.GetAsset)
	api.DELETE("/media-assets/:id", h.DeleteAsset)
	api.GET("/encounters/:encounterId/media-assets", h.ListEncounterAssets)
}

func writeError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, scope.ErrScopeMissing):
		he = echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	case errors.Is(err, scope.ErrCrossTenantViolation), errors.Is(err, db.ErrNotFound):
		he = echo.NewHTTPError(http.StatusNotFound, "media asset not found")
	case errors.Is(err, tenant.ErrTenantInactive):
		he = echo.NewHTTPError(http.StatusForbidden, "tenant is deactivated")
	case errors.Is(err, audit.ErrChainConflict):
		he = echo.NewHTTPError(http.StatusConflict, "concurrent write, retry the request")
	case errors.Is(err, db.ErrStoreUnavailable):
		he = echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	default:
		he = echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// Keep the cause attached so the request logger can classify it.
	return he.SetInternal(err)
}

type createAssetRequest struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
}

func (h *Handler) CreateAsset(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}

	var req createAssetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a := &Asset{
		EncounterID: req.EncounterID,
		StorageKey:  req.StorageKey,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	}
	meta := audit.RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
	if err := h.svc.Create(c.Request().Context(), sc, a, meta); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAsset(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	a, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAsset(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	meta := audit.RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
	if err := h.svc.Delete(c.Request().Context(), sc, id, meta); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEncounterAssets(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	encounterID, err := uuid.Parse(c.Param("encounterId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter id")
	}
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListByEncounter(c.Request().Context(), sc, encounterID, pg.Limit, pg.Offset)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
