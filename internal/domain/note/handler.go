package note

import (
	"errors"
	"net/http"
	"strconv"

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
	api.POST("/notes", h.CreateNote)
	api.GET("/notes/:id", h.GetNote)
	api.GET("/notes/:id/content", h.GetCurrentContent)
	api.POST("/notes/:id/versions", h.AppendVersion)
	api.GET("/notes/:id/versions", h.ListVersions)
	api.GET("/notes/:id/versions/:version", h.GetVersion)
	api.POST("/notes/:id/finalize", h.FinalizeNote)
	api.POST("/notes/:id/amend", h.AmendNote)
	api.POST("/notes/:id/archive", h.ArchiveNote)
	api.GET("/encounters/:encounterId/notes", h.ListEncounterNotes)
}

func writeError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, scope.ErrScopeMissing):
		he = echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	case errors.Is(err, scope.ErrCrossTenantViolation), errors.Is(err, db.ErrNotFound):
		he = echo.NewHTTPError(http.StatusNotFound, "note not found")
	case errors.Is(err, tenant.ErrTenantInactive):
		he = echo.NewHTTPError(http.StatusForbidden, "tenant is deactivated")
	case errors.Is(err, ErrVersionConflict):
		he = echo.NewHTTPError(http.StatusConflict, "version conflict, retry against the current head")
	case errors.Is(err, ErrNoteFinalized):
		he = echo.NewHTTPError(http.StatusConflict, "note is finalized, use amend")
	case errors.Is(err, ErrNotFinalized):
		he = echo.NewHTTPError(http.StatusConflict, "note is not finalized")
	case errors.Is(err, ErrNoteArchived):
		he = echo.NewHTTPError(http.StatusConflict, "note is archived")
	case errors.Is(err, ErrChangeSummaryRequired):
		he = echo.NewHTTPError(http.StatusBadRequest, "change_summary is required")
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

func requestMeta(c echo.Context) audit.RequestMeta {
	return audit.RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func scopeAndID(c echo.Context) (scope.Scope, uuid.UUID, error) {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return scope.Scope{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return scope.Scope{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return sc, id, nil
}

type createNoteRequest struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	Content     string    `json:"content"`
}

func (h *Handler) CreateNote(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}

	var req createNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	n, err := h.svc.Create(c.Request().Context(), sc, req.EncounterID, req.Content, requestMeta(c))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetNote(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) GetCurrentContent(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	n, v, err := h.svc.CurrentContent(c.Request().Context(), sc, id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"note": n, "version": v})
}

type contentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) AppendVersion(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	v, err := h.svc.AppendVersion(c.Request().Context(), sc, id, req.Content, requestMeta(c))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVersions(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	versions, err := h.svc.ListVersions(c.Request().Context(), sc, id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, versions)
}

func (h *Handler) GetVersion(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}

	v, err := h.svc.GetVersion(c.Request().Context(), sc, id, version)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) FinalizeNote(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.Finalize(c.Request().Context(), sc, id, requestMeta(c))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, n)
}

type amendRequest struct {
	Content       string `json:"content"`
	ChangeSummary string `json:"change_summary"`
}

func (h *Handler) AmendNote(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	var req amendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	v, err := h.svc.Amend(c.Request().Context(), sc, id, req.Content, req.ChangeSummary, requestMeta(c))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ArchiveNote(c echo.Context) error {
	sc, id, err := scopeAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Archive(c.Request().Context(), sc, id, requestMeta(c)); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEncounterNotes(c echo.Context) error {
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
